// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/cloud"
	"github.com/InsiderP/video-streaming/internal/media"
)

// Uploader stages files in object storage. Satisfied by *objstore.S3Store.
type Uploader interface {
	Upload(ctx context.Context, path, key string) (string, error)
}

// Submitter submits cloud transcoding jobs. Satisfied by *cloud.Adapter.
type Submitter interface {
	Submit(ctx context.Context, videoID, inputLocation, outputPrefix string, rungs []media.QualityRung) (string, error)
}

// Poller reports cloud job status. Satisfied by *cloud.Adapter.
type Poller interface {
	GetStatus(ctx context.Context, jobID string) (*cloud.JobState, error)
}

// cloudBackend stages the source in object storage and submits one remote
// job covering all rungs. Completion is observed via the orchestrator's
// PollJob.
type cloudBackend struct {
	uploader  Uploader
	submitter Submitter
	rungs     []media.QualityRung
	log       zerolog.Logger
}

// NewCloudBackend creates the cloud transcoding strategy.
func NewCloudBackend(uploader Uploader, submitter Submitter, rungs []media.QualityRung, logger zerolog.Logger) Backend {
	return &cloudBackend{
		uploader:  uploader,
		submitter: submitter,
		rungs:     rungs,
		log:       logger,
	}
}

func (b *cloudBackend) Name() string { return "cloud" }

func (b *cloudBackend) Start(ctx context.Context, video *media.Video, progress ProgressFn) (*Result, error) {
	sourceKey := "sources/" + video.ID + filepath.Ext(video.SourcePath)

	if progress != nil {
		progress(5, "uploading source to object storage")
	}
	inputRef, err := b.uploader.Upload(ctx, video.SourcePath, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: stage source: %w", ErrExternal, err)
	}

	jobID, err := b.submitter.Submit(ctx, video.ID, inputRef, "videos/"+video.ID, b.rungs)
	if err != nil {
		// ConfigError propagates as-is: fatal, not retried.
		var cfgErr *cloud.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: submit job: %w", ErrExternal, err)
	}

	b.log.Info().
		Str("video_id", video.ID).
		Str("job_id", jobID).
		Msg("cloud job submitted")

	if progress != nil {
		progress(10, "cloud transcoding job submitted")
	}
	return &Result{JobID: jobID}, nil
}
