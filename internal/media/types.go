// SPDX-License-Identifier: MIT

package media

import "time"

// Video is the persisted record for one uploaded source video.
type Video struct {
	ID              string    `json:"id"`
	SourcePath      string    `json:"source_path"`
	Status          Status    `json:"status"`
	ProcessingJobID string    `json:"processing_job_id,omitempty"` // set only for the cloud strategy
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	ThumbnailPath   string    `json:"thumbnail_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Rendition is one quality-specific encoded output of a video.
// At most one rendition exists per (video, quality label).
type Rendition struct {
	ID           string    `json:"id"`
	VideoID      string    `json:"video_id"`
	Quality      string    `json:"quality"` // e.g. "720p"
	BitrateKbps  int       `json:"bitrate_kbps"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	PlaylistPath string    `json:"playlist_path"` // local relative path or absolute URL
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExternal reports whether the rendition's playlist lives on a remote
// backend and must be redirected to rather than re-served.
func (r Rendition) IsExternal() bool {
	return hasURLScheme(r.PlaylistPath)
}

func hasURLScheme(p string) bool {
	return len(p) > 8 && (p[:7] == "http://" || p[:8] == "https://")
}

// QualityRung is one entry in the ordered table of target qualities.
type QualityRung struct {
	Quality     string `json:"quality" yaml:"quality"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	BitrateKbps int    `json:"bitrate_kbps" yaml:"bitrate_kbps"`
	CRF         int    `json:"crf" yaml:"crf"`
}

// DefaultRungs is the built-in quality ladder, highest first.
func DefaultRungs() []QualityRung {
	return []QualityRung{
		{Quality: "1080p", Width: 1920, Height: 1080, BitrateKbps: 5000, CRF: 20},
		{Quality: "720p", Width: 1280, Height: 720, BitrateKbps: 2800, CRF: 22},
		{Quality: "480p", Width: 854, Height: 480, BitrateKbps: 1200, CRF: 23},
		{Quality: "360p", Width: 640, Height: 360, BitrateKbps: 800, CRF: 25},
	}
}

// SegmentSeconds is the fixed HLS segment duration used by both the local
// and the cloud strategy, keeping manifests structurally comparable.
const SegmentSeconds = 10

// JobStatus is the state of a cloud transcoding job as reported by the
// remote service.
type JobStatus string

const (
	JobSubmitted   JobStatus = "submitted"
	JobProgressing JobStatus = "progressing"
	JobComplete    JobStatus = "complete"
	JobError       JobStatus = "error"
)

// IsTerminal reports whether no further job status transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobComplete || s == JobError
}

// Progress is the user-visible processing state for one video, cached
// alongside the persisted status so clients can poll cheaply.
type Progress struct {
	Status  Status  `json:"status"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
	Error   string  `json:"error,omitempty"`
}
