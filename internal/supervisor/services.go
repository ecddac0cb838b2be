// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package supervisor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/musicchartsai/chartsync/internal/logging"
)

// StartStopper is the lifecycle shape of the sync runner: Start spawns
// background work, Stop blocks until it drains.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// RunnerService adapts the sync runner's Start/Stop lifecycle to the
// suture.Service interface.
type RunnerService struct {
	runner StartStopper
}

// NewRunnerService wraps the sync runner as a supervised service.
func NewRunnerService(runner StartStopper) *RunnerService {
	return &RunnerService{runner: runner}
}

// Serve implements suture.Service: it starts the runner, blocks until
// the context is canceled, then stops it gracefully.
func (s *RunnerService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	if err := s.runner.Stop(); err != nil {
		logging.Warn().Err(err).Msg("Sync runner stop reported error")
	}
	return ctx.Err()
}

// Checkpointer is the database maintenance surface: flush the WAL into
// the main file.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService periodically checkpoints the database so the WAL
// stays small and restarts recover quickly.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
}

// NewCheckpointService wraps db as a supervised periodic checkpointer.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CheckpointService{db: db, interval: interval}
}

// Serve implements suture.Service: checkpoint on every tick until the
// context is canceled. Checkpoint failures are logged, not fatal.
func (s *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.db.Checkpoint(ctx); err != nil {
				logging.Warn().Err(err).Msg("Periodic database checkpoint failed")
			}
		}
	}
}

// HTTPService runs an http.Server under supervision with graceful
// shutdown. It owns its listener so tests can bind port 0.
type HTTPService struct {
	server          *http.Server
	shutdownTimeout time.Duration

	listener net.Listener
}

// NewHTTPService wraps server as a supervised service.
func NewHTTPService(server *http.Server, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Addr returns the bound listener address, valid once Serve has started
// listening.
func (s *HTTPService) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve implements suture.Service: listen, serve until the context is
// canceled, then shut down gracefully within the timeout.
func (s *HTTPService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	logging.Info().Str("addr", listener.Addr().String()).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("HTTP server shutdown incomplete, closing")
		_ = s.server.Close()
	}
	<-errCh
	return ctx.Err()
}
