// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsiderP/video-streaming/internal/cache"
	"github.com/InsiderP/video-streaming/internal/manifest"
	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/pipeline"
	"github.com/InsiderP/video-streaming/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	videos     map[string]*media.Video
	renditions map[string][]media.Rendition
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		videos:     make(map[string]*media.Video),
		renditions: make(map[string][]media.Rendition),
	}
}

func (s *fakeStore) CreateVideo(_ context.Context, v *media.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.videos[v.ID] = &cp
	return nil
}

func (s *fakeStore) GetVideo(_ context.Context, id string) (*media.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, next media.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return store.ErrNotFound
	}
	v.Status = next
	return nil
}

func (s *fakeStore) SetProcessingJobID(_ context.Context, id, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.videos[id]; ok {
		v.ProcessingJobID = jobID
	}
	return nil
}

func (s *fakeStore) SetMediaInfo(_ context.Context, _ string, _ float64, _ string) error {
	return nil
}

func (s *fakeStore) InsertRendition(_ context.Context, r *media.Rendition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renditions[r.VideoID] = append(s.renditions[r.VideoID], *r)
	return nil
}

func (s *fakeStore) UpdateRenditionLocation(_ context.Context, _, _, _ string) error {
	return nil
}

func (s *fakeStore) ListRenditions(_ context.Context, videoID string) ([]media.Rendition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.Rendition(nil), s.renditions[videoID]...), nil
}

func (s *fakeStore) GetRendition(_ context.Context, videoID, quality string) (*media.Rendition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.renditions[videoID] {
		if r.Quality == quality {
			cp := r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakePipeline struct {
	started  chan string
	pollResp *media.Progress
	pollErr  error
	status   *media.Progress
}

func (p *fakePipeline) StartPipeline(_ context.Context, videoID string) error {
	if p.started != nil {
		p.started <- videoID
	}
	return nil
}

func (p *fakePipeline) PollJob(_ context.Context, _ string) (*media.Progress, error) {
	return p.pollResp, p.pollErr
}

func (p *fakePipeline) Status(_ context.Context, _ string) (*media.Progress, error) {
	if p.status != nil {
		return p.status, nil
	}
	return &media.Progress{Status: media.StatusUploading}, nil
}

func newTestServer(t *testing.T, s *fakeStore, p *fakePipeline) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	c := cache.NewMemoryCache(0)
	m := manifest.NewGenerator(s, c, zerolog.Nop())
	srv := New(s, c, p, m, nil, dataDir, zerolog.Nop())
	return srv, dataDir
}

func seedReadyVideo(t *testing.T, s *fakeStore, id string) {
	t.Helper()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID:     id,
		Status: media.StatusReady,
	}))
	for i, q := range []struct {
		quality string
		kbps    int
		w, h    int
	}{
		{"720p", 2800, 1280, 720},
		{"480p", 1200, 854, 480},
	} {
		require.NoError(t, s.InsertRendition(context.Background(), &media.Rendition{
			ID:           fmt.Sprintf("r%d", i),
			VideoID:      id,
			Quality:      q.quality,
			BitrateKbps:  q.kbps,
			Width:        q.w,
			Height:       q.h,
			PlaylistPath: "videos/" + id + "/" + q.quality + "/playlist.m3u8",
		}))
	}
}

func TestProcessAcceptsUploadingVideo(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusUploading,
	}))
	p := &fakePipeline{started: make(chan string, 1)}
	srv, _ := newTestServer(t, s, p)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/videos/v1/process", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	select {
	case id := <-p.started:
		assert.Equal(t, "v1", id)
	case <-time.After(time.Second):
		t.Fatal("pipeline was never started")
	}
}

func TestProcessUnknownVideo(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore(), &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/videos/nope/process", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessConflictsWhileProcessing(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusProcessing,
	}))
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/videos/v1/process", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusPollsCloudJob(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusProcessing, ProcessingJobID: "job-42",
	}))
	p := &fakePipeline{pollResp: &media.Progress{
		Status: media.StatusProcessing, Percent: 42,
	}}
	srv, _ := newTestServer(t, s, p)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var progress media.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, media.StatusProcessing, progress.Status)
	assert.Equal(t, float64(42), progress.Percent)
}

func TestStatusExternalErrorIs503(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusProcessing, ProcessingJobID: "job-42",
	}))
	p := &fakePipeline{pollErr: fmt.Errorf("%w: throttled", pipeline.ErrExternal)}
	srv, _ := newTestServer(t, s, p)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusLocalVideoUsesCachedState(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusReady,
	}))
	p := &fakePipeline{status: &media.Progress{Status: media.StatusReady, Percent: 100}}
	srv, _ := newTestServer(t, s, p)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var progress media.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, media.StatusReady, progress.Status)
}

func TestOptimalQualitySelection(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/optimal?bandwidth=1600", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// 1600 * 0.8 = 1280 target: 480p fits, 720p does not.
	assert.Equal(t, "480p", resp["quality"])
}

func TestOptimalQualityBadBandwidth(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/optimal?bandwidth=lots", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptimalQualityNoRenditions(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusUploading,
	}))
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/videos/v1/optimal?bandwidth=5000", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMasterManifestDelivery(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/v1/master.m3u8", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeHLS, rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "#EXTM3U")
	assert.Contains(t, body, "BANDWIDTH=2800000")
	assert.Contains(t, body, "480p/playlist.m3u8")
}

func TestMasterManifestUnknownVideo(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore(), &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/nope/master.m3u8", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQualityPlaylistServesLocalFile(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, dataDir := newTestServer(t, s, &fakePipeline{})

	dir := filepath.Join(dataDir, "videos", "v1", "720p")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte(content), 0o644))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/v1/720p/playlist.m3u8", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.String())
}

func TestQualityPlaylistRedirectsExternal(t *testing.T) {
	s := newFakeStore()
	require.NoError(t, s.CreateVideo(context.Background(), &media.Video{
		ID: "v1", Status: media.StatusReady,
	}))
	require.NoError(t, s.InsertRendition(context.Background(), &media.Rendition{
		ID: "r1", VideoID: "v1", Quality: "720p", BitrateKbps: 2800,
		PlaylistPath: "https://cdn.example.com/videos/v1/index_720p.m3u8",
	}))
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/v1/720p/playlist.m3u8", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://cdn.example.com/videos/v1/index_720p.m3u8", rec.Header().Get("Location"))
}

func TestQualityPlaylistUnknownQuality(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, _ := newTestServer(t, s, &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/v1/4k/playlist.m3u8", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSegmentPathTraversalBlocked(t *testing.T) {
	s := newFakeStore()
	seedReadyVideo(t, s, "v1")
	srv, dataDir := newTestServer(t, s, &fakePipeline{})

	secret := filepath.Join(filepath.Dir(dataDir), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("nope"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/videos/v1/720p/segment_000.ts", nil)
	// chi decodes the URL param; simulate an escape attempt directly.
	rec := httptest.NewRecorder()
	srv.serveLocal(rec, req, "videos/../../secret.txt", "video/mp2t")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, newFakeStore(), &fakePipeline{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
