// SPDX-License-Identifier: MIT

// Package media provides the domain types for videos, renditions and
// quality rungs.
package media

// Status represents the lifecycle state of a video.
//
// Status provides type safety for video state management, preventing
// string-based typos and enabling exhaustive switch statements.
type Status string

const (
	// StatusUploading indicates the source file is still being uploaded.
	StatusUploading Status = "uploading"

	// StatusProcessing indicates a transcoding pipeline run is in flight.
	StatusProcessing Status = "processing"

	// StatusReady indicates at least one rendition exists and playback is possible.
	StatusReady Status = "ready"

	// StatusFailed indicates the pipeline run terminated without producing renditions.
	StatusFailed Status = "failed"

	// StatusDeleted marks a soft-deleted video. No further mutations are applied.
	StatusDeleted Status = "deleted"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is one of the defined constants.
func (s Status) IsValid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusReady, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further pipeline transitions are expected.
// A terminal video can only move to Deleted, or to Processing again via a
// brand-new upload replacing the source.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
//
// Uploading -> Processing -> {Ready, Failed}; Ready/Failed -> Deleted (soft).
// A fresh upload replacing the source re-enters Processing from Ready/Failed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusDeleted {
		return false
	}
	switch next {
	case StatusProcessing:
		return s == StatusUploading || s == StatusReady || s == StatusFailed
	case StatusReady, StatusFailed:
		return s == StatusProcessing
	case StatusDeleted:
		return true
	case StatusUploading:
		return false
	default:
		return false
	}
}
