// SPDX-License-Identifier: MIT

// Package store persists video and rendition rows and enforces the video
// status state machine at the storage boundary.
package store

import (
	"context"
	"errors"

	"github.com/InsiderP/video-streaming/internal/media"
)

var (
	// ErrNotFound is returned when a video or rendition row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTransition is returned when a status update violates the
	// state machine, including any mutation of a deleted video.
	ErrInvalidTransition = errors.New("store: invalid status transition")

	// ErrDuplicateRendition is returned when a rendition already exists for
	// the same (video, quality) pair.
	ErrDuplicateRendition = errors.New("store: duplicate rendition")
)

// Store is the persistence collaborator consumed by the orchestrator and
// the manifest generator.
type Store interface {
	CreateVideo(ctx context.Context, v *media.Video) error
	GetVideo(ctx context.Context, id string) (*media.Video, error)

	// UpdateStatus applies a state machine transition. It fails with
	// ErrInvalidTransition when the current status does not permit next,
	// and never mutates a deleted video.
	UpdateStatus(ctx context.Context, id string, next media.Status) error

	// SetProcessingJobID records the cloud job id on the video row.
	SetProcessingJobID(ctx context.Context, id, jobID string) error

	// SetMediaInfo records probed duration and thumbnail location.
	SetMediaInfo(ctx context.Context, id string, durationSeconds float64, thumbnailPath string) error

	// InsertRendition persists one completed quality rung. At most one
	// rendition may exist per (video, quality); inserts against a deleted
	// video are rejected.
	InsertRendition(ctx context.Context, r *media.Rendition) error

	// UpdateRenditionLocation repoints an existing rendition's playlist,
	// used when content is republished to a different storage backend.
	UpdateRenditionLocation(ctx context.Context, videoID, quality, playlistPath string) error

	ListRenditions(ctx context.Context, videoID string) ([]media.Rendition, error)
	GetRendition(ctx context.Context, videoID, quality string) (*media.Rendition, error)
}
