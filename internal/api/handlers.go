// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/InsiderP/video-streaming/internal/manifest"
	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/pipeline"
	"github.com/InsiderP/video-streaming/internal/store"
)

const contentTypeHLS = "application/vnd.apple.mpegurl"

// handleProcess kicks off a transcoding run for an uploaded video. The run
// itself happens in the background; clients follow it via the status
// endpoint.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	video, err := s.store.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeInternalError(w)
		return
	}
	switch video.Status {
	case media.StatusProcessing:
		writeConflict(w, pipeline.ErrAlreadyProcessing)
		return
	case media.StatusDeleted:
		writeConflict(w, pipeline.ErrNotProcessable)
		return
	}

	// The run outlives the request; detach it from the request context.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.pipeline.StartPipeline(ctx, videoID); err != nil {
			s.log.Error().Err(err).Str("video_id", videoID).Msg("pipeline run ended with error")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"video_id": videoID,
		"status":   string(media.StatusProcessing),
	})
}

// handleStatus reports the current processing state. For cloud-strategy
// videos still in flight it polls the remote job, which is what drives
// the run to completion.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	video, err := s.store.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeInternalError(w)
		return
	}

	if !video.Status.IsTerminal() && video.ProcessingJobID != "" {
		progress, err := s.pipeline.PollJob(r.Context(), videoID)
		if err != nil {
			if errors.Is(err, pipeline.ErrExternal) {
				writeServiceUnavailable(w, err)
				return
			}
			writeInternalError(w)
			return
		}
		writeJSON(w, http.StatusOK, progress)
		return
	}

	progress, err := s.pipeline.Status(r.Context(), videoID)
	if err != nil {
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleOptimalQuality picks the best rendition for a reported bandwidth.
func (s *Server) handleOptimalQuality(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	bandwidthKbps, err := strconv.Atoi(r.URL.Query().Get("bandwidth"))
	if err != nil || bandwidthKbps < 0 {
		writeError(w, errors.New("bandwidth must be a non-negative integer in kbps"))
		return
	}

	renditions, err := s.store.ListRenditions(r.Context(), videoID)
	if err != nil {
		writeInternalError(w)
		return
	}
	selected, ok := media.SelectOptimalQuality(renditions, bandwidthKbps)
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quality":      selected.Quality,
		"bitrate_kbps": selected.BitrateKbps,
		"width":        selected.Width,
		"height":       selected.Height,
		"location":     selected.PlaylistPath,
	})
}

// handleMasterManifest serves the master HLS playlist.
func (s *Server) handleMasterManifest(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")

	master, err := s.manifests.BuildMaster(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeInternalError(w)
		return
	}
	w.Header().Set("Content-Type", contentTypeHLS)
	_, _ = w.Write([]byte(master))
}

// handleQualityPlaylist serves one rendition's playlist, redirecting when
// the content lives on a remote backend.
func (s *Server) handleQualityPlaylist(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	quality := chi.URLParam(r, "quality")

	ref, err := s.manifests.ResolvePlaylist(r.Context(), videoID, quality)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeInternalError(w)
		return
	}
	if ref.External {
		http.Redirect(w, r, ref.Location, http.StatusFound)
		return
	}
	s.serveLocal(w, r, ref.Location, contentTypeHLS)
}

// handleSegment serves media segments for locally-stored renditions.
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "id")
	quality := chi.URLParam(r, "quality")
	file := chi.URLParam(r, "file")

	rel := filepath.ToSlash(filepath.Join("videos", videoID, quality, file))
	s.serveLocal(w, r, rel, "video/mp2t")
}

// serveLocal serves a file below the data directory, rejecting any path
// that escapes it.
func (s *Server) serveLocal(w http.ResponseWriter, r *http.Request, rel, contentType string) {
	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		writeInternalError(w)
		return
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		writeNotFound(w)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeFile(w, r, full)
}

// handleHealthz reports liveness of the storage backends.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeServiceUnavailable(w, err)
			return
		}
	}
	if hc, ok := s.cache.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(r.Context()); err != nil {
			writeServiceUnavailable(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
