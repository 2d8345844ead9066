// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package metrics defines Prometheus instrumentation for the service.
// All collectors are registered at init via promauto and exposed on
// /metrics by the API layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_http_requests_total",
			Help: "Total HTTP requests processed, by method, path and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedrank_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ComposeDuration observes end-to-end feed composition latency.
	ComposeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedrank_compose_duration_seconds",
			Help:    "Feed composition latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// ComposeDegraded counts compositions that lost at least one generator.
	ComposeDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedrank_compose_degraded_total",
			Help: "Feed compositions served with one or more generators failed or timed out.",
		},
	)

	// GeneratorDuration observes per-generator latency.
	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedrank_generator_duration_seconds",
			Help:    "Candidate generator latency in seconds, by source.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// GeneratorEmpty counts generator runs that produced no candidates.
	GeneratorEmpty = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_generator_empty_total",
			Help: "Generator runs returning zero candidates, by source.",
		},
		[]string{"source"},
	)

	// GeneratorTimeouts counts generator runs cut off by their deadline.
	GeneratorTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_generator_timeouts_total",
			Help: "Generator runs that exceeded the per-generator timeout, by source.",
		},
		[]string{"source"},
	)

	// EventsIngested counts behavior events appended to the log.
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_events_ingested_total",
			Help: "Behavior events durably appended, by behavior type.",
		},
		[]string{"behavior_type"},
	)

	// EventsRejected counts events rejected at validation.
	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedrank_events_rejected_total",
			Help: "Behavior events rejected by validation.",
		},
	)

	// EventsPublished counts events accepted into the pipeline.
	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedrank_events_published_total",
			Help: "Behavior events published to the ingest pipeline.",
		},
	)

	// ProfileBuildDuration observes interest profile build latency.
	ProfileBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedrank_profile_build_duration_seconds",
			Help:    "Interest profile build latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// ProfileCacheHits counts profile cache hits and misses.
	ProfileCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_profile_cache_total",
			Help: "Profile cache lookups, by result (hit or miss).",
		},
		[]string{"result"},
	)

	// SimilarityCacheHits counts nearest-user cache hits and misses.
	SimilarityCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrank_similarity_cache_total",
			Help: "Similarity cache lookups, by result (hit or miss).",
		},
		[]string{"result"},
	)

	// StoreBreakerState tracks the behavior store circuit breaker
	// (0 closed, 1 half-open, 2 open).
	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedrank_store_breaker_state",
			Help: "Behavior store circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
	)
)

// ObserveCompose records one feed composition.
func ObserveCompose(d time.Duration, degraded bool) {
	ComposeDuration.Observe(d.Seconds())
	if degraded {
		ComposeDegraded.Inc()
	}
}

// ObserveGenerator records one generator run.
func ObserveGenerator(source string, d time.Duration, count int, timedOut bool) {
	GeneratorDuration.WithLabelValues(source).Observe(d.Seconds())
	if count == 0 {
		GeneratorEmpty.WithLabelValues(source).Inc()
	}
	if timedOut {
		GeneratorTimeouts.WithLabelValues(source).Inc()
	}
}

// RecordCacheLookup records a hit or miss on the named cache counter.
func RecordCacheLookup(c *prometheus.CounterVec, hit bool) {
	if hit {
		c.WithLabelValues("hit").Inc()
	} else {
		c.WithLabelValues("miss").Inc()
	}
}
