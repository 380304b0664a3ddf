// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the video streaming service:
// pipeline control, status polling, manifest delivery and segment serving.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/cache"
	"github.com/InsiderP/video-streaming/internal/manifest"
	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/store"
)

// Pipeline is the orchestration surface consumed by the handlers.
// Satisfied by *pipeline.Orchestrator.
type Pipeline interface {
	StartPipeline(ctx context.Context, videoID string) error
	PollJob(ctx context.Context, videoID string) (*media.Progress, error)
	Status(ctx context.Context, videoID string) (*media.Progress, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server carries the handler dependencies.
type Server struct {
	store     store.Store
	cache     cache.Cache
	pipeline  Pipeline
	manifests *manifest.Generator
	pinger    Pinger
	dataDir   string
	log       zerolog.Logger
}

// New creates the API server. pinger may be nil when the store has no
// liveness probe.
func New(s store.Store, c cache.Cache, p Pipeline, m *manifest.Generator, pinger Pinger, dataDir string, logger zerolog.Logger) *Server {
	return &Server{
		store:     s,
		cache:     c,
		pipeline:  p,
		manifests: m,
		pinger:    pinger,
		dataDir:   dataDir,
		log:       logger,
	}
}

// Router assembles the chi router with all routes and middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)

	r.Route("/api/v1/videos/{id}", func(r chi.Router) {
		r.With(processRateLimit()).Post("/process", s.handleProcess)
		r.Get("/status", s.handleStatus)
		r.Get("/optimal", s.handleOptimalQuality)
	})

	r.Route("/videos/{id}", func(r chi.Router) {
		r.Get("/master.m3u8", s.handleMasterManifest)
		r.Get("/{quality}/playlist.m3u8", s.handleQualityPlaylist)
		r.Get("/{quality}/{file}", s.handleSegment)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// processRateLimit bounds how often clients may kick off transcoding runs.
// Runs are expensive; 10 per minute per IP is generous for legitimate use.
func processRateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		10,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
