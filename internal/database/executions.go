// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

const executionColumns = `
	id, schedule_id, status,
	started_at, completed_at, error_message,
	rankings_created, rankings_updated, tracks_created, tracks_updated,
	retry_count, max_retries, next_attempt_at, triggered_by,
	created_at, updated_at`

// CreateExecutionIfIdle persists exec in Pending status only if the
// schedule has no other non-terminal execution. The check and the
// insert happen in a single conditional INSERT so two concurrent
// callers can never both succeed. Returns false without error when a
// live execution already exists.
func (db *DB) CreateExecutionIfIdle(ctx context.Context, exec *models.SyncExecution) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if exec.ID == "" {
		exec.ID = uuidString()
	}
	now := time.Now().UTC()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now

	query := `
		INSERT INTO sync_executions (` + executionColumns + `)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_executions
			WHERE schedule_id = ? AND status IN ('pending', 'running')
		)
	`
	result, err := db.conn.ExecContext(ctx, query,
		exec.ID,
		exec.ScheduleID,
		string(exec.Status),
		nullableTimeValue(exec.StartedAt),
		exec.CompletedAt,
		exec.ErrorMessage,
		exec.Counts.RankingsCreated,
		exec.Counts.RankingsUpdated,
		exec.Counts.TracksCreated,
		exec.Counts.TracksUpdated,
		exec.RetryCount,
		exec.MaxRetries,
		exec.NextAttemptAt,
		exec.TriggeredBy,
		exec.CreatedAt,
		exec.UpdatedAt,
		exec.ScheduleID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create execution: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateExecution persists all mutable execution fields.
func (db *DB) UpdateExecution(ctx context.Context, exec *models.SyncExecution) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	exec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sync_executions
		SET status = ?,
			started_at = ?, completed_at = ?, error_message = ?,
			rankings_created = ?, rankings_updated = ?, tracks_created = ?, tracks_updated = ?,
			retry_count = ?, next_attempt_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := db.conn.ExecContext(ctx, query,
		string(exec.Status),
		nullableTimeValue(exec.StartedAt),
		exec.CompletedAt,
		exec.ErrorMessage,
		exec.Counts.RankingsCreated,
		exec.Counts.RankingsUpdated,
		exec.Counts.TracksCreated,
		exec.Counts.TracksUpdated,
		exec.RetryCount,
		exec.NextAttemptAt,
		exec.UpdatedAt,
		exec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return requireRowAffected(result, "execution", exec.ID)
}

// ClaimExecution persists the Pending to Running transition with a
// status guard, the resume-path counterpart to CreateExecutionIfIdle:
// a row already claimed by another process matches zero rows and the
// claim is reported lost.
func (db *DB) ClaimExecution(ctx context.Context, exec *models.SyncExecution) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		UPDATE sync_executions
		SET status = ?, started_at = ?, next_attempt_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := db.conn.ExecContext(ctx, query,
		string(exec.Status),
		nullableTimeValue(exec.StartedAt),
		exec.UpdatedAt,
		exec.ID,
		string(models.ExecutionPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim execution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check claimed execution: %w", err)
	}
	return n == 1, nil
}

// GetExecution retrieves an execution by ID. Returns (nil, nil) when absent.
func (db *DB) GetExecution(ctx context.Context, id string) (*models.SyncExecution, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + executionColumns + ` FROM sync_executions WHERE id = ?`
	exec, err := scanExecution(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return exec, err
}

// ListExecutions returns the most recent executions for a schedule,
// newest first.
func (db *DB) ListExecutions(ctx context.Context, scheduleID string, limit int) ([]models.SyncExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + executionColumns + `
		FROM sync_executions
		WHERE schedule_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
	return db.queryExecutions(ctx, query, scheduleID, limit)
}

// ListRetryableExecutions returns Pending executions whose backoff
// delay has elapsed, oldest attempt first.
func (db *DB) ListRetryableExecutions(ctx context.Context, now time.Time) ([]models.SyncExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM sync_executions
		WHERE status = 'pending' AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
		ORDER BY next_attempt_at
	`
	return db.queryExecutions(ctx, query, now.UTC())
}

func (db *DB) queryExecutions(ctx context.Context, query string, args ...any) ([]models.SyncExecution, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeQuietly(rows)

	var execs []models.SyncExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *exec)
	}
	return execs, rows.Err()
}

func scanExecution(row rowScanner) (*models.SyncExecution, error) {
	var (
		exec        models.SyncExecution
		status      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
		nextAttempt sql.NullTime
	)
	err := row.Scan(
		&exec.ID,
		&exec.ScheduleID,
		&status,
		&startedAt,
		&completedAt,
		&exec.ErrorMessage,
		&exec.Counts.RankingsCreated,
		&exec.Counts.RankingsUpdated,
		&exec.Counts.TracksCreated,
		&exec.Counts.TracksUpdated,
		&exec.RetryCount,
		&exec.MaxRetries,
		&nextAttempt,
		&exec.TriggeredBy,
		&exec.CreatedAt,
		&exec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}
	exec.Status = models.ExecutionStatus(status)
	if startedAt.Valid {
		exec.StartedAt = startedAt.Time.UTC()
	}
	exec.CompletedAt = nullableTime(completedAt)
	exec.NextAttemptAt = nullableTime(nextAttempt)
	return &exec, nil
}

// nullableTimeValue maps the zero time to NULL for insertion.
func nullableTimeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
