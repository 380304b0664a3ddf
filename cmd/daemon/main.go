// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/InsiderP/video-streaming/internal/api"
	"github.com/InsiderP/video-streaming/internal/cache"
	"github.com/InsiderP/video-streaming/internal/cloud"
	"github.com/InsiderP/video-streaming/internal/config"
	"github.com/InsiderP/video-streaming/internal/encoder"
	xglog "github.com/InsiderP/video-streaming/internal/log"
	"github.com/InsiderP/video-streaming/internal/manifest"
	"github.com/InsiderP/video-streaming/internal/objstore"
	"github.com/InsiderP/video-streaming/internal/pipeline"
	"github.com/InsiderP/video-streaming/internal/store"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "video-streaming",
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		cfg config.AppConfig
		err error
	)
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
	}

	db, err := store.Open(cfg.SQLitePath, store.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open database")
	}
	defer func() { _ = db.Close() }()

	c := buildCache(cfg)

	backend, poller, publisher, objectURL, err := buildStrategy(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build transcoding strategy")
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Store:     db,
		Cache:     c,
		Backend:   backend,
		Poller:    poller,
		Publisher: publisher,
		ObjectURL: objectURL,
		DataDir:   cfg.DataDir,
		Rungs:     cfg.Rungs,
		Logger:    xglog.WithComponent("pipeline"),
	})

	manifests := manifest.NewGenerator(db, c, xglog.WithComponent("manifest"))
	server := api.New(db, c, orchestrator, manifests, db, cfg.DataDir, xglog.WithComponent("api"))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("strategy", backend.Name()).
			Str("version", version).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
	if err := orchestrator.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pipeline runs still in flight at shutdown")
	}
}

// buildCache selects Redis when configured and falls back to the in-memory
// cache otherwise.
func buildCache(cfg config.AppConfig) cache.Cache {
	logger := xglog.WithComponent("cache")
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache(5 * time.Minute)
	}
	c, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
			Msg("redis unavailable, falling back to in-memory cache")
		return cache.NewMemoryCache(5 * time.Minute)
	}
	return c
}

// buildStrategy wires the cloud strategy when credentials are configured
// and the local ffmpeg strategy otherwise. PublishLocalOutputs forces the
// local strategy and reuses the credentials for republishing instead.
func buildStrategy(ctx context.Context, cfg config.AppConfig) (pipeline.Backend, pipeline.Poller, pipeline.Publisher, func(string) string, error) {
	if cfg.Cloud.Configured() && !cfg.PublishLocalOutputs {
		logger := xglog.WithComponent("cloud")
		s3, err := objstore.New(ctx, cfg.Cloud, xglog.WithComponent("objstore"))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		adapter, err := cloud.NewAdapter(ctx, cfg.Cloud, logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		backend := pipeline.NewCloudBackend(s3, adapter, cfg.Rungs, logger)
		return backend, adapter, nil, s3.ObjectURL, nil
	}

	enc := encoder.New(cfg.FFmpegPath, &encoder.DefaultExecutor{Logger: xglog.WithComponent("exec")}, xglog.WithComponent("encoder"))
	backend := pipeline.NewLocalBackend(enc, cfg.Rungs, cfg.DataDir, cfg.WorkerCount, xglog.WithComponent("local"))

	// Local outputs can optionally be republished to object storage when
	// both the flag and credentials are present.
	var publisher pipeline.Publisher
	if cfg.PublishLocalOutputs && cfg.Cloud.Configured() {
		s3, err := objstore.New(ctx, cfg.Cloud, xglog.WithComponent("objstore"))
		if err != nil {
			return nil, nil, nil, nil, err
		}
		publisher = s3
	}
	return backend, nil, publisher, nil, nil
}
