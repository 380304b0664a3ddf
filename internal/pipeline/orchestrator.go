// SPDX-License-Identifier: MIT

// Package pipeline drives one transcoding run per video to completion and
// keeps the persisted status authoritative.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/cache"
	"github.com/InsiderP/video-streaming/internal/cloud"
	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/metrics"
	"github.com/InsiderP/video-streaming/internal/store"
)

// Publisher republishes locally-produced renditions to remote storage.
// Satisfied by *objstore.S3Store.
type Publisher interface {
	UploadDir(ctx context.Context, dir, prefix, entryFile string) (string, error)
}

// Deps holds all collaborators of the Orchestrator. Strategy choice and
// the rung table are explicit values fixed at construction.
type Deps struct {
	Store   store.Store
	Cache   cache.Cache
	Backend Backend
	Rungs   []media.QualityRung
	Logger  zerolog.Logger

	// Poller resolves cloud job status; nil for the local strategy.
	Poller Poller

	// ObjectURL maps an object-storage key to its delivery URL; required
	// when Poller is set.
	ObjectURL func(key string) string

	// Publisher, when non-nil, uploads local rendition directories after a
	// successful run and repoints their locations.
	Publisher Publisher

	// DataDir resolves local rendition directories for publishing.
	DataDir string
}

// Orchestrator owns the status state machine for videos and coordinates
// one pipeline run per video.
type Orchestrator struct {
	deps Deps
	log  zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{} // video ids with an in-process run
	runs   sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		log:    deps.Logger,
		active: make(map[string]struct{}),
	}
}

// StartPipeline drives one run for the given video. The video must be in a
// processable state and must not already have a run in flight.
//
// Local strategy: runs to a terminal status synchronously. Cloud strategy:
// submits the remote job and returns; completion is observed via PollJob.
func (o *Orchestrator) StartPipeline(ctx context.Context, videoID string) error {
	if !o.acquire(videoID) {
		return ErrAlreadyProcessing
	}
	defer o.release(videoID)

	video, err := o.deps.Store.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	switch video.Status {
	case media.StatusProcessing:
		return ErrAlreadyProcessing
	case media.StatusDeleted:
		return fmt.Errorf("%w: video deleted", ErrNotProcessable)
	case media.StatusUploading, media.StatusReady, media.StatusFailed:
		// Uploading is the normal entry; Ready/Failed re-enter via a fresh
		// upload replacing the source.
	}

	if err := o.deps.Store.UpdateStatus(ctx, videoID, media.StatusProcessing); err != nil {
		return err
	}
	o.putStatus(videoID, media.Progress{
		Status:  media.StatusProcessing,
		Percent: 5,
		Message: "transcoding started",
	})

	runLog := o.log.With().
		Str("video_id", videoID).
		Str("run_id", uuid.NewString()).
		Str("strategy", o.deps.Backend.Name()).
		Logger()
	runLog.Info().Msg("pipeline run started")

	result, err := o.deps.Backend.Start(ctx, video, func(percent float64, message string) {
		o.putStatus(videoID, media.Progress{
			Status:  media.StatusProcessing,
			Percent: percent,
			Message: message,
		})
	})
	if err != nil {
		o.failRun(ctx, videoID, err)
		metrics.IncPipelineRun(o.deps.Backend.Name(), "failed")
		return err
	}

	if result.JobID != "" {
		if err := o.deps.Store.SetProcessingJobID(ctx, videoID, result.JobID); err != nil {
			o.failRun(ctx, videoID, err)
			return err
		}
		return nil
	}

	return o.finishLocalRun(ctx, videoID, result, runLog)
}

// finishLocalRun persists the rendition rows and flips the terminal status
// for a synchronous local run.
func (o *Orchestrator) finishLocalRun(ctx context.Context, videoID string, result *Result, runLog zerolog.Logger) error {
	if result.DurationSeconds > 0 || result.ThumbnailPath != "" {
		if err := o.deps.Store.SetMediaInfo(ctx, videoID, result.DurationSeconds, result.ThumbnailPath); err != nil {
			// A deleted video rejects all further mutations.
			if errors.Is(err, store.ErrInvalidTransition) {
				runLog.Warn().Err(err).Msg("video went away during run, dropping results")
				return err
			}
			runLog.Warn().Err(err).Msg("persisting media info failed")
		}
	}

	persisted := 0
	for i := range result.Renditions {
		r := result.Renditions[i]
		r.ID = uuid.NewString()
		if err := o.deps.Store.InsertRendition(ctx, &r); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				runLog.Warn().Err(err).Msg("video went away during run, dropping results")
				return err
			}
			runLog.Error().Err(err).Str("quality", r.Quality).Msg("persisting rendition failed")
			continue
		}
		persisted++
	}

	if persisted == 0 {
		err := fmt.Errorf("%w: %d rung failures", ErrPipelineExhausted, len(result.Failures))
		o.failRun(ctx, videoID, err)
		metrics.IncPipelineRun(o.deps.Backend.Name(), "failed")
		return err
	}

	if err := o.deps.Store.UpdateStatus(ctx, videoID, media.StatusReady); err != nil {
		return err
	}
	o.invalidate(videoID)
	o.putStatus(videoID, media.Progress{
		Status:  media.StatusReady,
		Percent: 100,
		Message: fmt.Sprintf("ready with %d renditions", persisted),
	})
	metrics.IncPipelineRun(o.deps.Backend.Name(), "ready")
	runLog.Info().
		Int("renditions", persisted).
		Int("failures", len(result.Failures)).
		Msg("pipeline run complete")

	o.publishOutputs(ctx, videoID, result, runLog)
	return nil
}

// PollJob observes the remote job for a cloud-strategy video and applies
// its outcome. It is idempotent after a terminal state: repeated calls
// produce no further side effects.
func (o *Orchestrator) PollJob(ctx context.Context, videoID string) (*media.Progress, error) {
	video, err := o.deps.Store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if video.Status.IsTerminal() {
		return o.terminalProgress(video), nil
	}
	if video.ProcessingJobID == "" {
		return nil, ErrNoJob
	}

	state, err := o.deps.Poller.GetStatus(ctx, video.ProcessingJobID)
	if err != nil {
		metrics.IncCloudPoll("error")
		return nil, fmt.Errorf("%w: %w", ErrExternal, err)
	}
	metrics.IncCloudPoll(string(state.Status))

	switch state.Status {
	case media.JobSubmitted, media.JobProgressing:
		// Non-terminal: refresh the cached progress only.
		progress := media.Progress{
			Status:  media.StatusProcessing,
			Percent: state.Progress,
			Message: "cloud transcoding in progress",
		}
		o.putStatus(videoID, progress)
		return &progress, nil

	case media.JobComplete:
		return o.completeCloudRun(ctx, videoID, state)

	case media.JobError:
		o.failRun(ctx, videoID, errors.New(state.Error))
		metrics.IncPipelineRun("cloud", "failed")
		return &media.Progress{
			Status:  media.StatusFailed,
			Message: "transcoding failed, no renditions available",
			Error:   state.Error,
		}, nil

	default:
		return nil, fmt.Errorf("pipeline: unexpected job status %q", state.Status)
	}
}

// completeCloudRun persists one rendition per job output and flips the
// video to Ready.
func (o *Orchestrator) completeCloudRun(ctx context.Context, videoID string, state *cloud.JobState) (*media.Progress, error) {
	rungByQuality := make(map[string]media.QualityRung, len(o.deps.Rungs))
	for _, r := range o.deps.Rungs {
		rungByQuality[r.Quality] = r
	}

	persisted := 0
	for _, out := range state.Outputs {
		rung, ok := rungByQuality[out.Quality]
		if !ok {
			o.log.Warn().Str("quality", out.Quality).Msg("job output has no matching rung, skipping")
			continue
		}
		r := media.Rendition{
			ID:           uuid.NewString(),
			VideoID:      videoID,
			Quality:      out.Quality,
			BitrateKbps:  rung.BitrateKbps,
			Width:        rung.Width,
			Height:       rung.Height,
			PlaylistPath: o.deps.ObjectURL(out.Key),
		}
		err := o.deps.Store.InsertRendition(ctx, &r)
		switch {
		case err == nil:
			persisted++
		case errors.Is(err, store.ErrDuplicateRendition):
			// A concurrent or repeated poll already persisted this rung.
			persisted++
		case errors.Is(err, store.ErrInvalidTransition):
			return nil, err
		default:
			o.log.Error().Err(err).Str("quality", out.Quality).Msg("persisting cloud rendition failed")
		}
	}

	if persisted == 0 {
		err := fmt.Errorf("%w: job completed with no usable outputs", ErrPipelineExhausted)
		o.failRun(ctx, videoID, err)
		metrics.IncPipelineRun("cloud", "failed")
		return nil, err
	}

	if err := o.deps.Store.UpdateStatus(ctx, videoID, media.StatusReady); err != nil {
		return nil, err
	}
	o.invalidate(videoID)
	progress := media.Progress{
		Status:  media.StatusReady,
		Percent: 100,
		Message: fmt.Sprintf("ready with %d renditions", persisted),
	}
	o.putStatus(videoID, progress)
	metrics.IncPipelineRun("cloud", "ready")
	return &progress, nil
}

// publishOutputs optionally republishes local rendition directories to
// object storage. Failures are logged, never fatal: playback keeps working
// from local paths.
func (o *Orchestrator) publishOutputs(ctx context.Context, videoID string, result *Result, runLog zerolog.Logger) {
	if o.deps.Publisher == nil {
		return
	}
	republished := 0
	for _, r := range result.Renditions {
		dir := localRenditionDir(o.deps.DataDir, videoID, r.Quality)
		url, err := o.deps.Publisher.UploadDir(ctx, dir, "videos/"+videoID+"/"+r.Quality, "playlist.m3u8")
		if err != nil {
			runLog.Warn().Err(err).Str("quality", r.Quality).Msg("republish failed, keeping local location")
			continue
		}
		if err := o.deps.Store.UpdateRenditionLocation(ctx, videoID, r.Quality, url); err != nil {
			runLog.Warn().Err(err).Str("quality", r.Quality).Msg("republish location update failed")
			continue
		}
		republished++
	}
	if republished > 0 {
		o.invalidate(videoID)
		runLog.Info().Int("renditions", republished).Msg("republished local renditions")
	}
}

// Status returns the current user-visible processing state, cache-first.
func (o *Orchestrator) Status(ctx context.Context, videoID string) (*media.Progress, error) {
	progress, err := cache.GetOrLoad(o.deps.Cache, cache.StatusKey(videoID), cache.StatusTTL, func() (media.Progress, error) {
		video, err := o.deps.Store.GetVideo(ctx, videoID)
		if err != nil {
			return media.Progress{}, err
		}
		return *o.terminalProgress(video), nil
	})
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// terminalProgress derives a Progress blob from the persisted status.
func (o *Orchestrator) terminalProgress(video *media.Video) *media.Progress {
	switch video.Status {
	case media.StatusReady:
		return &media.Progress{Status: media.StatusReady, Percent: 100, Message: "ready"}
	case media.StatusFailed:
		return &media.Progress{
			Status:  media.StatusFailed,
			Message: "transcoding failed, no renditions available",
		}
	case media.StatusDeleted:
		return &media.Progress{Status: media.StatusDeleted, Message: "video deleted"}
	case media.StatusUploading:
		return &media.Progress{Status: media.StatusUploading, Message: "waiting for upload to finish"}
	default:
		return &media.Progress{Status: media.StatusProcessing, Message: "still processing"}
	}
}

// failRun flips the video to Failed and records the error for clients.
// The transition is skipped when the video was deleted mid-run.
func (o *Orchestrator) failRun(ctx context.Context, videoID string, cause error) {
	if err := o.deps.Store.UpdateStatus(ctx, videoID, media.StatusFailed); err != nil {
		o.log.Error().Err(err).Str("video_id", videoID).Msg("marking video failed")
	}
	o.invalidate(videoID)
	o.putStatus(videoID, media.Progress{
		Status:  media.StatusFailed,
		Message: "transcoding failed, no renditions available",
		Error:   cause.Error(),
	})
	o.log.Error().Err(cause).Str("video_id", videoID).Msg("pipeline run failed")
}

func (o *Orchestrator) putStatus(videoID string, p media.Progress) {
	cache.Put(o.deps.Cache, cache.StatusKey(videoID), p, cache.StatusTTL)
}

func (o *Orchestrator) invalidate(videoID string) {
	qualities := make([]string, 0, len(o.deps.Rungs))
	for _, r := range o.deps.Rungs {
		qualities = append(qualities, r.Quality)
	}
	cache.InvalidateVideo(o.deps.Cache, videoID, qualities)
}

func (o *Orchestrator) acquire(videoID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[videoID]; busy {
		return false
	}
	o.active[videoID] = struct{}{}
	o.runs.Add(1)
	return true
}

func (o *Orchestrator) release(videoID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, videoID)
	o.runs.Done()
}

// Drain blocks until every in-flight run has finished or ctx expires.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func localRenditionDir(dataDir, videoID, quality string) string {
	return dataDir + "/videos/" + videoID + "/" + quality
}
