// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/models"
)

// ExecutionStore persists execution state transitions. Every transition
// must be written atomically with its timestamp; the tracker never
// leaves an in-memory state the store has not seen.
type ExecutionStore interface {
	UpdateExecution(ctx context.Context, exec *models.SyncExecution) error

	// ClaimExecution persists the Pending to Running transition only if
	// the stored status is still Pending, so two processes resuming the
	// same retry cannot both win. Returns false without error when the
	// claim is lost.
	ClaimExecution(ctx context.Context, exec *models.SyncExecution) (bool, error)
}

// TrackerConfig holds execution tracker configuration.
type TrackerConfig struct {
	// BaseRetryDelay is the base for the exponential backoff applied to
	// failed executions: delay = BaseRetryDelay * 2^retry_count.
	// Default: 1 minute
	BaseRetryDelay time.Duration
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		BaseRetryDelay: time.Minute,
	}
}

// Tracker drives the per-execution state machine:
//
//	Pending -> Running -> {Completed, Failed, Cancelled}
//
// A failed Running execution returns to Pending with a backoff delay
// while retries remain; once retry_count reaches max_retries the
// failure is terminal. Terminal executions admit no further
// transitions.
type Tracker struct {
	store     ExecutionStore
	logger    zerolog.Logger
	baseDelay time.Duration
	now       func() time.Time
}

// NewTracker creates an execution tracker backed by store.
func NewTracker(store ExecutionStore, logger *zerolog.Logger, cfg TrackerConfig) *Tracker {
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Minute
	}
	return &Tracker{
		store:     store,
		logger:    logger.With().Str("component", "execution-tracker").Logger(),
		baseDelay: cfg.BaseRetryDelay,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MarkRunning transitions a Pending execution to Running and stamps the
// attempt start time. The claim is conditional on the stored status, so
// a concurrent claimer loses cleanly; exec is only mutated when the
// claim is won.
func (t *Tracker) MarkRunning(ctx context.Context, exec *models.SyncExecution) error {
	if exec.Status != models.ExecutionPending {
		return &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionRunning}
	}

	now := t.now()
	claimed := *exec
	claimed.Status = models.ExecutionRunning
	claimed.StartedAt = now
	claimed.NextAttemptAt = nil
	claimed.UpdatedAt = now

	won, err := t.store.ClaimExecution(ctx, &claimed)
	if err != nil {
		return fmt.Errorf("failed to persist execution %s transition to %s: %w", exec.ID, models.ExecutionRunning, err)
	}
	if !won {
		return &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionRunning}
	}
	*exec = claimed
	return nil
}

// MarkCompleted transitions a Running execution to Completed with its
// final counts. errorSummary carries the structured per-period failure
// summary for partial successes; empty for clean runs. All counters
// must be non-negative.
func (t *Tracker) MarkCompleted(ctx context.Context, exec *models.SyncExecution, counts models.SyncCounts, errorSummary string) error {
	if exec.Status != models.ExecutionRunning {
		return &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionCompleted}
	}
	if counts.RankingsCreated < 0 || counts.RankingsUpdated < 0 || counts.TracksCreated < 0 || counts.TracksUpdated < 0 {
		return fmt.Errorf("execution %s: negative counts %+v", exec.ID, counts)
	}

	now := t.now()
	exec.Status = models.ExecutionCompleted
	exec.Counts = counts
	exec.ErrorMessage = errorSummary
	exec.CompletedAt = &now
	exec.UpdatedAt = now

	return t.persist(ctx, exec)
}

// MarkFailed records a failed attempt on a Running execution. While
// retries remain the execution returns to Pending with
// next_attempt_at = now + base_delay * 2^retry_count; once retry_count
// reaches max_retries the execution finalizes as Failed. The returned
// bool reports whether another attempt is scheduled.
func (t *Tracker) MarkFailed(ctx context.Context, exec *models.SyncExecution, errorMessage string) (bool, error) {
	if exec.Status != models.ExecutionRunning {
		return false, &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionFailed}
	}

	now := t.now()
	exec.RetryCount++
	exec.ErrorMessage = errorMessage
	exec.UpdatedAt = now

	if exec.RetryCount >= exec.MaxRetries {
		exec.Status = models.ExecutionFailed
		exec.CompletedAt = &now
		exec.NextAttemptAt = nil
		if err := t.persist(ctx, exec); err != nil {
			return false, err
		}
		t.logger.Warn().
			Str("execution_id", exec.ID).
			Int("retry_count", exec.RetryCount).
			Msg("Execution failed terminally, retries exhausted")
		return false, nil
	}

	next := now.Add(t.backoffDelay(exec.RetryCount))
	exec.Status = models.ExecutionPending
	exec.NextAttemptAt = &next
	if err := t.persist(ctx, exec); err != nil {
		return false, err
	}
	t.logger.Info().
		Str("execution_id", exec.ID).
		Int("retry_count", exec.RetryCount).
		Time("next_attempt_at", next).
		Msg("Execution failed, retry scheduled")
	return true, nil
}

// MarkFailedPermanent finalizes a Running execution as Failed without
// consuming a retry. Used when the provider reports a permanent
// condition (unknown chart, auth failure) that retrying cannot fix.
func (t *Tracker) MarkFailedPermanent(ctx context.Context, exec *models.SyncExecution, errorMessage string) error {
	if exec.Status != models.ExecutionRunning {
		return &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionFailed}
	}

	now := t.now()
	exec.Status = models.ExecutionFailed
	exec.ErrorMessage = errorMessage
	exec.CompletedAt = &now
	exec.NextAttemptAt = nil
	exec.UpdatedAt = now

	return t.persist(ctx, exec)
}

// MarkCancelled terminalizes a Running execution as Cancelled. The
// caller must still route the execution through the scheduler's
// terminal handling so the schedule makes forward progress.
func (t *Tracker) MarkCancelled(ctx context.Context, exec *models.SyncExecution) error {
	if exec.Status != models.ExecutionRunning {
		return &InvalidTransitionError{ExecutionID: exec.ID, From: exec.Status, To: models.ExecutionCancelled}
	}

	now := t.now()
	exec.Status = models.ExecutionCancelled
	exec.CompletedAt = &now
	exec.NextAttemptAt = nil
	exec.UpdatedAt = now

	return t.persist(ctx, exec)
}

// backoffDelay computes the exponential backoff for the given retry
// count: base * 2^retryCount.
func (t *Tracker) backoffDelay(retryCount int) time.Duration {
	return t.baseDelay * time.Duration(1<<uint(retryCount))
}

func (t *Tracker) persist(ctx context.Context, exec *models.SyncExecution) error {
	if err := t.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("failed to persist execution %s transition to %s: %w", exec.ID, exec.Status, err)
	}
	return nil
}
