// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the service's Prometheus metrics and the gin
// middleware that records them.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by route and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "status"})

	// RequestDuration observes request latency by route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docchat_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// PipelineRuns counts answer pipeline completions by outcome.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_pipeline_runs_total",
		Help: "Answer pipeline runs, by outcome (ok, no_match, error).",
	}, []string{"outcome"})

	// PipelineStageDuration observes per-stage pipeline latency.
	PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docchat_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage latency in seconds, by stage.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	// IndexBuilds counts collection index builds.
	IndexBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_index_builds_total",
		Help: "Collection index builds completed.",
	})

	// CacheHits counts ingestion records served from the chunk cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_chunk_cache_hits_total",
		Help: "Ingestion requests answered from the chunk cache.",
	})

	// CacheMisses counts ingestion records that required a fresh conversion.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_chunk_cache_misses_total",
		Help: "Ingestion requests that required converting the source.",
	})

	// ActiveStreams gauges currently open SSE answer streams.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docchat_active_streams",
		Help: "Currently open answer streams.",
	})
)

// Pipeline outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeNoMatch = "no_match"
	OutcomeError   = "error"
)

// Middleware records request count and latency per route. Uses the route
// template, not the raw path, so path parameters do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
