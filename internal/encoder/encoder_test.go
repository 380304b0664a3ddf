// SPDX-License-Identifier: MIT

package encoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsiderP/video-streaming/internal/media"
)

// fakeExec simulates ffmpeg by writing the declared output files.
type fakeExec struct {
	stderr string
	err    error
	calls  [][]string
	write  bool // write playlist+segments like a successful encode
}

func (f *fakeExec) Run(ctx context.Context, name string, args []string) (string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.write && f.err == nil {
		out := args[len(args)-1]
		_ = os.WriteFile(out, []byte("#EXTM3U\n"), 0o600)
		_ = os.WriteFile(filepath.Join(filepath.Dir(out), "segment_000.ts"), make([]byte, 1024), 0o600)
	}
	return f.stderr, f.err
}

func testRung() media.QualityRung {
	return media.QualityRung{Quality: "720p", Width: 1280, Height: 720, BitrateKbps: 2800, CRF: 22}
}

func TestEncodeRungSuccess(t *testing.T) {
	fe := &fakeExec{write: true}
	e := New("ffmpeg", fe, zerolog.Nop())
	outDir := filepath.Join(t.TempDir(), "720p")

	out, err := e.EncodeRung(context.Background(), "/uploads/src.mp4", testRung(), outDir)
	require.NoError(t, err)

	assert.Equal(t, "720p", out.Quality)
	assert.Equal(t, filepath.Join(outDir, PlaylistName), out.PlaylistPath)
	assert.Equal(t, outDir, out.SegmentDir)
	assert.Greater(t, out.SizeBytes, int64(1024), "playlist plus one segment")

	require.Len(t, fe.calls, 1)
	args := fe.calls[0]
	assert.Contains(t, args, "-hls_time")
	assert.Contains(t, args, "10")
	assert.Contains(t, args, "scale=-2:720")
	assert.Contains(t, args, "-crf")
}

func TestEncodeRungExecFailure(t *testing.T) {
	fe := &fakeExec{err: errors.New("exit status 1"), stderr: "Invalid data found"}
	e := New("ffmpeg", fe, zerolog.Nop())

	_, err := e.EncodeRung(context.Background(), "/uploads/src.mp4", testRung(), filepath.Join(t.TempDir(), "720p"))
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "720p", execErr.Quality)
	assert.Contains(t, execErr.Error(), "Invalid data found")
}

func TestEncodeRungMissingPlaylist(t *testing.T) {
	// Exec reports success but writes nothing.
	fe := &fakeExec{write: false}
	e := New("ffmpeg", fe, zerolog.Nop())

	_, err := e.EncodeRung(context.Background(), "/uploads/src.mp4", testRung(), filepath.Join(t.TempDir(), "720p"))
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestProbeDuration(t *testing.T) {
	// ffmpeg exits non-zero without an output file; the duration must still parse.
	fe := &fakeExec{
		stderr: "Input #0, mov,mp4\n  Duration: 00:02:05.50, start: 0.000000, bitrate: 1205 kb/s\nAt least one output file must be specified",
		err:    errors.New("exit status 1"),
	}
	e := New("ffmpeg", fe, zerolog.Nop())

	d, err := e.ProbeDuration(context.Background(), "/uploads/src.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 125.5, d, 0.001)
}

func TestProbeDurationNoBanner(t *testing.T) {
	fe := &fakeExec{stderr: "no such file", err: errors.New("exit status 1")}
	e := New("ffmpeg", fe, zerolog.Nop())

	_, err := e.ProbeDuration(context.Background(), "/uploads/missing.mp4")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"Duration: 00:00:10.00", 10, true},
		{"  Duration: 01:02:03.04, start: 0", 3723.04, true},
		{"no duration here", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseDuration(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.InDelta(t, tt.want, got, 0.001, tt.in)
		}
	}
}

func TestExtractThumbnail(t *testing.T) {
	fe := &fakeExec{}
	e := New("ffmpeg", fe, zerolog.Nop())
	out := filepath.Join(t.TempDir(), "thumbs", "v.jpg")

	require.NoError(t, e.ExtractThumbnail(context.Background(), "/uploads/src.mp4", out, 3))
	require.Len(t, fe.calls, 1)
	assert.Contains(t, fe.calls[0], "-frames:v")
	assert.Contains(t, fe.calls[0], out)
}
