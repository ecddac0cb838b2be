// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package main is the entry point for the ChartSync server.
//
// ChartSync keeps locally stored music chart rankings complete and
// current. It detects gaps between what a chart's publication schedule
// implies should exist and what the database actually holds, then
// backfills the missing periods from the Soundcharts API on a periodic
// schedule with retry, backoff and circuit breaking.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config file and
//     environment variables (Koanf v2)
//  2. Database: DuckDB with charts, schedules, executions and rankings
//  3. Provider client: rate-limited Soundcharts client behind a
//     circuit breaker
//  4. Sync core: gap detection, execution tracking, schedule
//     advancement and the cycle orchestrator
//  5. Events (optional): execution lifecycle events over NATS
//     JetStream via Watermill
//  6. HTTP server: REST API for charts, schedules and executions
//
// The sync runner and the HTTP server run as siblings under a Suture
// supervisor tree, so a crash in one layer restarts that layer without
// taking the other down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (CHARTSYNC_ prefix)
//   - Config file (CHARTSYNC_CONFIG_PATH, ./config.yaml, /etc/chartsync/)
//   - Built-in defaults
//
// Minimal configuration requires only provider credentials:
//
//	export CHARTSYNC_SOUNDCHARTS_APP_ID=your-app-id
//	export CHARTSYNC_SOUNDCHARTS_API_KEY=your-api-key
//	./chartsync
//
// With NATS event publishing:
//
//	export CHARTSYNC_EVENTS_ENABLED=true
//	export CHARTSYNC_EVENTS_URL=nats://nats:4222
//	./chartsync
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the runner
// finishes its in-flight cycle, the HTTP server drains connections
// within the shutdown timeout, and the database checkpoints on close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/musicchartsai/chartsync/internal/api"
	"github.com/musicchartsai/chartsync/internal/chartsync"
	"github.com/musicchartsai/chartsync/internal/config"
	"github.com/musicchartsai/chartsync/internal/database"
	"github.com/musicchartsai/chartsync/internal/events"
	"github.com/musicchartsai/chartsync/internal/logging"
	"github.com/musicchartsai/chartsync/internal/soundcharts"
	"github.com/musicchartsai/chartsync/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config is not available yet
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Bool("events_enabled", cfg.Events.Enabled).
		Msg("Starting ChartSync")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Provider client behind a circuit breaker. A failed ping is not
	// fatal: the breaker and per-cycle retries handle recovery.
	client := soundcharts.NewClient(&cfg.Soundcharts)
	if err := client.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Soundcharts API unreachable (will retry during sync)")
	} else {
		logging.Info().Msg("Connected to Soundcharts API")
	}
	fetcher := soundcharts.NewBreakerClient(client)

	// Execution lifecycle events. NopPublisher keeps the orchestrator
	// wiring uniform when NATS is disabled.
	var publisher chartsync.EventPublisher
	var publisherCloser interface{ Close() error }
	if cfg.Events.Enabled {
		logger := logging.Logger()
		natsPublisher, err := events.NewNATSPublisher(&cfg.Events, &logger)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		publisher = natsPublisher
		publisherCloser = natsPublisher
		logging.Info().Str("url", cfg.Events.URL).Msg("NATS event publishing enabled")
	} else {
		publisher = events.NopPublisher{}
	}
	defer func() {
		if publisherCloser != nil {
			if err := publisherCloser.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing event publisher")
			}
		}
	}()

	// Sync core: tracker drives execution state, scheduler advances
	// next_sync_at, orchestrator runs the cycles, runner triggers them.
	logger := logging.Logger()
	tracker := chartsync.NewTracker(db, &logger, chartsync.TrackerConfig{
		BaseRetryDelay: cfg.Sync.BaseRetryDelay,
	})
	scheduler := chartsync.NewScheduler(db, &logger)
	orchestrator := chartsync.NewOrchestrator(db, fetcher, tracker, scheduler, publisher, &logger, chartsync.OrchestratorConfig{
		MaxConcurrentSyncs: cfg.Sync.MaxConcurrentSyncs,
		FetchTimeout:       cfg.Sync.FetchTimeout,
		MaxRetries:         cfg.Sync.MaxRetries,
	})
	runner := chartsync.NewRunner(orchestrator, &logger, chartsync.RunnerConfig{
		CheckInterval: cfg.Sync.CheckInterval,
		Enabled:       cfg.Sync.Enabled,
	})

	handler := api.NewHandler(db, scheduler, &logger, &cfg.API)
	router := api.NewRouter(handler, &cfg.API)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	treeConfig := supervisor.DefaultTreeConfig()
	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeConfig)
	tree.AddDataService(supervisor.NewCheckpointService(db, time.Hour))
	tree.AddSyncService(supervisor.NewRunnerService(runner))
	tree.AddAPIService(supervisor.NewHTTPService(server, treeConfig.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("ChartSync stopped gracefully")
}
