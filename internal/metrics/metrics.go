// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package metrics exposes Prometheus instrumentation for ChartSync:
// sync cycle timing, per-period fetch outcomes, execution lifecycle
// counts, provider client behavior, and API endpoint latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync cycle metrics
	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chartsync_cycle_duration_seconds",
			Help:    "Duration of full sync orchestration cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartsync_executions_total",
			Help: "Total sync execution outcomes by status",
		},
		[]string{"status"}, // "completed", "failed", "cancelled", "retry_scheduled"
	)

	ExecutionsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartsync_executions_skipped_total",
			Help: "Due schedules skipped because a live execution already existed",
		},
	)

	PeriodsMissing = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartsync_periods_missing_total",
			Help: "Total missing periods detected by gap detection",
		},
	)

	PeriodsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartsync_periods_fetched_total",
			Help: "Per-period fetch outcomes",
		},
		[]string{"result"}, // "success", "transient_error", "permanent_error", "store_error"
	)

	RankingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartsync_rankings_created_total",
			Help: "Ranking snapshots created by sync runs",
		},
	)

	RankingsUpdated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartsync_rankings_updated_total",
			Help: "Ranking snapshots updated by sync runs",
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartsync_sync_errors_total",
			Help: "Sync infrastructure errors by type",
		},
		[]string{"error_type"},
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chartsync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last completed sync execution",
		},
	)

	// Provider client metrics
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartsync_provider_request_duration_seconds",
			Help:    "Duration of ranking provider API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ProviderRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartsync_provider_request_errors_total",
			Help: "Ranking provider request errors by class",
		},
		[]string{"endpoint", "class"}, // "transient", "permanent"
	)

	ProviderRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chartsync_provider_retries_total",
			Help: "Ranking provider request retries after rate limits or server errors",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chartsync_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HTTP API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chartsync_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartsync_http_requests_total",
			Help: "Total HTTP API requests",
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
}

// SetCircuitBreakerState records a breaker state change.
func SetCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
