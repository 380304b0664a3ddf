// SPDX-License-Identifier: MIT

// Package encoder produces one segmented HLS rendition per quality rung by
// invoking the external ffmpeg binary.
package encoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/metrics"
)

// PlaylistName is the per-rendition playlist file produced for every rung.
const PlaylistName = "playlist.m3u8"

// RungOutput describes the files produced by one successful rung encode.
type RungOutput struct {
	Quality      string
	PlaylistPath string // absolute path of the quality playlist
	SegmentDir   string // directory holding the numbered segment files
	SizeBytes    int64  // total size of playlist plus segments
}

// Encoder runs ffmpeg once per target quality rung.
type Encoder struct {
	bin  string
	exec Exec
	log  zerolog.Logger
}

// New creates an Encoder. bin is the ffmpeg binary path; exec abstracts
// process execution for testing.
func New(bin string, exec Exec, logger zerolog.Logger) *Encoder {
	return &Encoder{bin: bin, exec: exec, log: logger}
}

// EncodeRung produces one segmented rendition for one quality rung.
// It writes a quality playlist plus numbered segments into outDir and
// returns the concrete output paths and total size. A non-zero ffmpeg exit
// or a missing playlist yields an *ExecutionError.
func (e *Encoder) EncodeRung(ctx context.Context, sourcePath string, rung media.QualityRung, outDir string) (*RungOutput, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("encoder: create output dir: %w", err)
	}

	args := buildHLSArgs(sourcePath, rung, outDir)

	start := time.Now()
	stderr, err := e.exec.Run(ctx, e.bin, args)
	metrics.ObserveEncodeDuration(rung.Quality, time.Since(start).Seconds())
	if err != nil {
		metrics.IncRungEncode(rung.Quality, "error")
		return nil, &ExecutionError{Quality: rung.Quality, Stderr: stderr, Err: err}
	}

	playlist := filepath.Join(outDir, PlaylistName)
	if _, err := os.Stat(playlist); err != nil {
		metrics.IncRungEncode(rung.Quality, "missing_output")
		return nil, &ExecutionError{
			Quality: rung.Quality,
			Stderr:  stderr,
			Err:     fmt.Errorf("playlist not written: %w", err),
		}
	}

	size, err := dirSize(outDir)
	if err != nil {
		return nil, fmt.Errorf("encoder: measure output: %w", err)
	}

	metrics.IncRungEncode(rung.Quality, "ok")
	e.log.Info().
		Str("quality", rung.Quality).
		Str("playlist", playlist).
		Int64("size_bytes", size).
		Dur("elapsed", time.Since(start)).
		Msg("rung encode complete")

	return &RungOutput{
		Quality:      rung.Quality,
		PlaylistPath: playlist,
		SegmentDir:   outDir,
		SizeBytes:    size,
	}, nil
}

// ExtractThumbnail grabs a single frame at atSeconds into outPath.
func (e *Encoder) ExtractThumbnail(ctx context.Context, sourcePath, outPath string, atSeconds float64) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("encoder: create thumbnail dir: %w", err)
	}
	args := []string{
		"-y", "-nostdin", "-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", sourcePath,
		"-frames:v", "1",
		"-vf", "scale=640:-2",
		outPath,
	}
	if stderr, err := e.exec.Run(ctx, e.bin, args); err != nil {
		return &ExecutionError{Quality: "thumbnail", Stderr: stderr, Err: err}
	}
	return nil
}

// ProbeDuration reports the source duration in seconds, parsed from the
// ffmpeg banner. ffmpeg exits non-zero when invoked without an output, so
// the exit status is ignored as long as a duration was printed.
func (e *Encoder) ProbeDuration(ctx context.Context, sourcePath string) (float64, error) {
	stderr, runErr := e.exec.Run(ctx, e.bin, []string{"-nostdin", "-hide_banner", "-i", sourcePath})
	d, ok := parseDuration(stderr)
	if !ok {
		if runErr != nil {
			return 0, &ExecutionError{Quality: "probe", Stderr: stderr, Err: runErr}
		}
		return 0, fmt.Errorf("encoder: no duration in ffmpeg output")
	}
	return d, nil
}

// buildHLSArgs assembles the ffmpeg invocation for one quality rung.
// Segment duration is fixed so local and cloud manifests stay structurally
// comparable.
func buildHLSArgs(sourcePath string, rung media.QualityRung, outDir string) []string {
	return []string{
		"-y", "-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", sourcePath,
		"-vf", fmt.Sprintf("scale=-2:%d", rung.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", fmt.Sprintf("%d", rung.CRF),
		"-maxrate", fmt.Sprintf("%dk", rung.BitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", rung.BitrateKbps*2),
		"-profile:v", "high",
		"-level", "4.0",
		"-c:a", "aac",
		"-ar", "48000",
		"-b:a", "128k",
		"-ac", "2",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", media.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", filepath.Join(outDir, "segment_%03d.ts"),
		filepath.Join(outDir, PlaylistName),
	}
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
