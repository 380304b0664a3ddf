// SPDX-License-Identifier: MIT

package pipeline

import "errors"

var (
	// ErrPipelineExhausted is returned when no quality rung succeeded and
	// the run ends Failed.
	ErrPipelineExhausted = errors.New("pipeline: no rung produced a rendition")

	// ErrAlreadyProcessing is returned when a pipeline run is requested for
	// a video that already has one in flight. Persisted rows for one video
	// are only ever mutated by its single active run.
	ErrAlreadyProcessing = errors.New("pipeline: run already in progress")

	// ErrNotProcessable is returned when the video's current status does
	// not permit starting a run.
	ErrNotProcessable = errors.New("pipeline: video not in a processable state")

	// ErrNoJob is returned by PollJob when the video has no cloud job to poll.
	ErrNoJob = errors.New("pipeline: no cloud job for video")

	// ErrExternal wraps failures of the cloud adapter or object storage.
	// The caller retries via its own polling interval; the orchestrator
	// does not retry internally.
	ErrExternal = errors.New("pipeline: external service error")
)
