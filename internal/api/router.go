// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package api provides the HTTP API using the Chi router: chart and
// schedule management, execution history, trends, and operational
// endpoints (health, metrics).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/musicchartsai/chartsync/internal/config"
)

// Router assembles the HTTP handler tree.
type Router struct {
	handler *Handler
	config  *config.APIConfig
}

// NewRouter creates a router around the given handler.
func NewRouter(handler *Handler, cfg *config.APIConfig) *Router {
	return &Router{handler: handler, config: cfg}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging())
	if len(router.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: router.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	// Operational endpoints, outside the rate-limited API tree so
	// monitoring never competes with clients for budget.
	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/readyz", router.handler.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if router.config.RateLimit > 0 {
			r.Use(httprate.Limit(
				router.config.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Use(PrometheusMetrics())

		r.Route("/charts", func(r chi.Router) {
			r.Get("/", router.handler.ListCharts)
			r.Post("/", router.handler.CreateChart)
			r.Get("/{id}", router.handler.GetChart)
			r.Get("/{id}/rankings", router.handler.ListRankings)
			r.Get("/{id}/trends", router.handler.GetTrends)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", router.handler.ListSchedules)
			r.Post("/", router.handler.CreateSchedule)
			r.Get("/{id}", router.handler.GetSchedule)
			r.Post("/{id}/activate", router.handler.ActivateSchedule)
			r.Post("/{id}/deactivate", router.handler.DeactivateSchedule)
			r.Post("/{id}/sync-now", router.handler.SyncNow)
			r.Get("/{id}/executions", router.handler.ListExecutions)
		})
	})

	return r
}
