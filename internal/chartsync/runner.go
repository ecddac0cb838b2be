// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RunnerConfig holds configuration for the periodic sync runner.
type RunnerConfig struct {
	// CheckInterval is how often a sync cycle runs (default: 5 minutes).
	// It only needs to be frequent enough that next_sync_at checks are
	// not missed by more than one interval.
	CheckInterval time.Duration

	// Enabled controls whether the runner is active.
	Enabled bool
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
	}
}

// Runner is the in-process periodic trigger: a ticker loop that invokes
// the orchestrator's RunCycle on a fixed interval. It integrates with
// the supervisor tree for lifecycle management.
type Runner struct {
	orchestrator *Orchestrator
	logger       zerolog.Logger
	config       RunnerConfig

	// Runtime state
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRunner creates a periodic sync runner.
func NewRunner(orchestrator *Orchestrator, logger *zerolog.Logger, config RunnerConfig) *Runner {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 5 * time.Minute
	}
	return &Runner{
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "sync-runner").Logger(),
		config:       config,
	}
}

// Start begins the runner loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sync runner already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	if !r.config.Enabled {
		r.logger.Info().Msg("Sync runner disabled")
		go func() {
			defer close(r.doneCh)
			<-r.stopCh
		}()
		return nil
	}

	r.logger.Info().
		Dur("check_interval", r.config.CheckInterval).
		Msg("Starting sync runner")

	go r.run(ctx)
	return nil
}

// Stop stops the runner loop and waits for it to complete.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.logger.Info().Msg("Stopping sync runner...")
	close(r.stopCh)
	<-r.doneCh

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.logger.Info().Msg("Sync runner stopped")
	return nil
}

// run is the main runner loop.
func (r *Runner) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	r.orchestrator.RunCycle(ctx, time.Now().UTC())

	for {
		select {
		case <-ticker.C:
			r.orchestrator.RunCycle(ctx, time.Now().UTC())
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// IsRunning returns whether the runner is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
