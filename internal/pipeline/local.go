// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/InsiderP/video-streaming/internal/encoder"
	"github.com/InsiderP/video-streaming/internal/media"
)

// localBackend encodes every quality rung with the external encoder,
// using a bounded worker pool. A failure in one rung's task does not
// cancel sibling tasks.
type localBackend struct {
	enc     *encoder.Encoder
	rungs   []media.QualityRung
	dataDir string
	workers int
	log     zerolog.Logger
}

// NewLocalBackend creates the local encoding strategy. workers bounds how
// many rungs encode concurrently for one video.
func NewLocalBackend(enc *encoder.Encoder, rungs []media.QualityRung, dataDir string, workers int, logger zerolog.Logger) Backend {
	if workers < 1 {
		workers = 1
	}
	return &localBackend{
		enc:     enc,
		rungs:   rungs,
		dataDir: dataDir,
		workers: workers,
		log:     logger,
	}
}

func (b *localBackend) Name() string { return "local" }

func (b *localBackend) Start(ctx context.Context, video *media.Video, progress ProgressFn) (*Result, error) {
	result := &Result{}

	// Media info first; both probes are best-effort.
	if d, err := b.enc.ProbeDuration(ctx, video.SourcePath); err == nil {
		result.DurationSeconds = d
	} else {
		b.log.Warn().Err(err).Str("video_id", video.ID).Msg("duration probe failed")
	}
	thumbPath := filepath.Join(b.dataDir, "thumbnails", video.ID+".jpg")
	if err := b.enc.ExtractThumbnail(ctx, video.SourcePath, thumbPath, thumbnailOffset(result.DurationSeconds)); err == nil {
		result.ThumbnailPath = thumbPath
	} else {
		b.log.Warn().Err(err).Str("video_id", video.ID).Msg("thumbnail extraction failed")
	}

	var (
		mu        sync.Mutex
		completed int
		total     = len(b.rungs)
	)

	// The group only bounds parallelism; rung errors are collected, never
	// returned, so one failing rung cannot cancel its siblings.
	g := &errgroup.Group{}
	g.SetLimit(b.workers)

	for _, rung := range b.rungs {
		g.Go(func() error {
			outDir := filepath.Join(b.dataDir, "videos", video.ID, rung.Quality)
			out, err := b.enc.EncodeRung(ctx, video.SourcePath, rung, outDir)

			mu.Lock()
			defer mu.Unlock()
			completed++
			if err != nil {
				// Non-fatal: skip this rung and keep going.
				b.log.Warn().Err(err).
					Str("video_id", video.ID).
					Str("quality", rung.Quality).
					Msg("rung encode failed, continuing")
				result.Failures = append(result.Failures, err)
			} else {
				result.Renditions = append(result.Renditions, media.Rendition{
					VideoID:      video.ID,
					Quality:      rung.Quality,
					BitrateKbps:  rung.BitrateKbps,
					Width:        rung.Width,
					Height:       rung.Height,
					PlaylistPath: relativePlaylistPath(video.ID, rung.Quality),
					SizeBytes:    out.SizeBytes,
				})
			}
			if progress != nil {
				percent := 5 + float64(completed)/float64(total)*90
				progress(percent, fmt.Sprintf("encoded %d of %d qualities", completed, total))
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// relativePlaylistPath is the rendition location stored for local outputs,
// relative to the data directory.
func relativePlaylistPath(videoID, quality string) string {
	return filepath.ToSlash(filepath.Join("videos", videoID, quality, encoder.PlaylistName))
}

// thumbnailOffset picks the frame grab position: a few seconds in when the
// source is long enough, otherwise the first frame.
func thumbnailOffset(durationSeconds float64) float64 {
	if durationSeconds > 10 {
		return 3
	}
	return 0
}
