// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"

	"github.com/InsiderP/video-streaming/internal/media"
)

// ProgressFn reports intermediate progress of a running backend.
type ProgressFn func(percent float64, message string)

// Result is the common outcome type shared by both encoding backends.
//
// The local backend completes synchronously and returns rendition
// candidates; the cloud backend returns a job id whose completion is
// observed later via PollJob.
type Result struct {
	// JobID is set by the cloud backend; empty for the local backend.
	JobID string

	// Renditions are the successful rung outputs, not yet persisted.
	Renditions []media.Rendition

	// Failures holds the non-fatal per-rung errors of this run.
	Failures []error

	// DurationSeconds and ThumbnailPath are probed media info (local
	// backend only; zero values when unavailable).
	DurationSeconds float64
	ThumbnailPath   string
}

// Backend drives one pipeline run under a single strategy.
type Backend interface {
	// Name identifies the strategy ("local" or "cloud") for logs and metrics.
	Name() string

	// Start runs the strategy for one video. Per-rung failures are
	// reported in Result.Failures, not as the error; the error is reserved
	// for faults that abort the whole run.
	Start(ctx context.Context, video *media.Video, progress ProgressFn) (*Result, error)
}
