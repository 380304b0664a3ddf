// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus instrumentation for the transcoding
// core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts completed pipeline runs by strategy and outcome.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_pipeline_runs_total",
		Help: "Completed transcoding pipeline runs",
	}, []string{"strategy", "outcome"})

	// RungEncodes counts per-rung encode attempts by quality and status.
	RungEncodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_rung_encodes_total",
		Help: "Per-quality-rung encode attempts",
	}, []string{"quality", "status"})

	// EncodeDuration tracks wall time of one rung encode.
	EncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vs_rung_encode_duration_seconds",
		Help:    "Duration of one quality rung encode",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
	}, []string{"quality"})

	// CloudPolls counts cloud job status polls by reported status.
	CloudPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_cloud_polls_total",
		Help: "Cloud transcoding job status polls",
	}, []string{"status"})

	// CacheOps counts cache operations by namespace and result.
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_cache_ops_total",
		Help: "Cache operations by namespace and result",
	}, []string{"namespace", "result"})

	// ManifestBuilds counts manifest generations by kind and source.
	ManifestBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vs_manifest_builds_total",
		Help: "Manifest builds by kind (master/playlist) and source (cache/store)",
	}, []string{"kind", "source"})
)

// IncPipelineRun records one completed pipeline run.
func IncPipelineRun(strategy, outcome string) {
	PipelineRuns.WithLabelValues(strategy, outcome).Inc()
}

// IncRungEncode records one rung encode attempt.
func IncRungEncode(quality, status string) {
	RungEncodes.WithLabelValues(quality, status).Inc()
}

// ObserveEncodeDuration records the wall time of one rung encode.
func ObserveEncodeDuration(quality string, seconds float64) {
	EncodeDuration.WithLabelValues(quality).Observe(seconds)
}

// IncCacheOp records one cache lookup by key namespace and result.
func IncCacheOp(namespace, result string) {
	CacheOps.WithLabelValues(namespace, result).Inc()
}

// IncCloudPoll records one cloud job poll result.
func IncCloudPoll(status string) {
	CloudPolls.WithLabelValues(status).Inc()
}

// IncManifestBuild records one manifest generation.
func IncManifestBuild(kind, source string) {
	ManifestBuilds.WithLabelValues(kind, source).Inc()
}
