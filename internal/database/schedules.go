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

	"github.com/google/uuid"

	"github.com/musicchartsai/chartsync/internal/models"
)

const scheduleColumns = `
	id, chart_id, is_active,
	frequency_kind, frequency_hours, week_anchor,
	last_sync_at, next_sync_at,
	total_executions, successful_executions, failed_executions,
	created_at, updated_at`

// CreateSchedule inserts a new sync schedule. The chart_id UNIQUE
// constraint enforces the one-schedule-per-chart invariant.
func (db *DB) CreateSchedule(ctx context.Context, schedule *models.SyncSchedule) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	query := `
		INSERT INTO sync_schedules (` + scheduleColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		schedule.ID,
		schedule.ChartID,
		schedule.IsActive,
		string(schedule.Frequency.Kind),
		schedule.Frequency.Hours,
		int(schedule.WeekAnchor),
		schedule.LastSyncAt,
		schedule.NextSyncAt,
		schedule.TotalExecutions,
		schedule.SuccessfulExecutions,
		schedule.FailedExecutions,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID. Returns (nil, nil) when absent.
func (db *DB) GetSchedule(ctx context.Context, id string) (*models.SyncSchedule, error) {
	return db.getScheduleWhere(ctx, "id = ?", id)
}

// GetScheduleByChart retrieves the schedule for a chart. Returns
// (nil, nil) when the chart is not enrolled.
func (db *DB) GetScheduleByChart(ctx context.Context, chartID string) (*models.SyncSchedule, error) {
	return db.getScheduleWhere(ctx, "chart_id = ?", chartID)
}

func (db *DB) getScheduleWhere(ctx context.Context, where string, arg any) (*models.SyncSchedule, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules WHERE ` + where
	schedule, err := scanSchedule(db.conn.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return schedule, err
}

// ListSchedules returns all schedules ordered by creation time.
func (db *DB) ListSchedules(ctx context.Context) ([]models.SyncSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules ORDER BY created_at`
	return db.querySchedules(ctx, query)
}

// ListDueSchedules returns active schedules whose next_sync_at has
// arrived. A NULL next_sync_at counts as due: a schedule that was never
// aligned syncs on the next cycle.
func (db *DB) ListDueSchedules(ctx context.Context, now time.Time) ([]models.SyncSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM sync_schedules
		WHERE is_active AND (next_sync_at IS NULL OR next_sync_at <= ?)
		ORDER BY next_sync_at NULLS FIRST
	`
	return db.querySchedules(ctx, query, now.UTC())
}

// UpdateSchedule persists all mutable schedule fields.
func (db *DB) UpdateSchedule(ctx context.Context, schedule *models.SyncSchedule) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	schedule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sync_schedules
		SET is_active = ?,
			frequency_kind = ?, frequency_hours = ?, week_anchor = ?,
			last_sync_at = ?, next_sync_at = ?,
			total_executions = ?, successful_executions = ?, failed_executions = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := db.conn.ExecContext(ctx, query,
		schedule.IsActive,
		string(schedule.Frequency.Kind),
		schedule.Frequency.Hours,
		int(schedule.WeekAnchor),
		schedule.LastSyncAt,
		schedule.NextSyncAt,
		schedule.TotalExecutions,
		schedule.SuccessfulExecutions,
		schedule.FailedExecutions,
		schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireRowAffected(result, "schedule", schedule.ID)
}

func (db *DB) querySchedules(ctx context.Context, query string, args ...any) ([]models.SyncSchedule, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer closeQuietly(rows)

	var schedules []models.SyncSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row rowScanner) (*models.SyncSchedule, error) {
	var (
		schedule   models.SyncSchedule
		freqKind   string
		freqHours  int
		weekAnchor int
		lastSync   sql.NullTime
		nextSync   sql.NullTime
	)
	err := row.Scan(
		&schedule.ID,
		&schedule.ChartID,
		&schedule.IsActive,
		&freqKind,
		&freqHours,
		&weekAnchor,
		&lastSync,
		&nextSync,
		&schedule.TotalExecutions,
		&schedule.SuccessfulExecutions,
		&schedule.FailedExecutions,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	schedule.Frequency = decodeFrequency(freqKind, freqHours)
	schedule.WeekAnchor = time.Weekday(weekAnchor)
	schedule.LastSyncAt = nullableTime(lastSync)
	schedule.NextSyncAt = nullableTime(nextSync)
	return &schedule, nil
}

// nullableTime converts a sql.NullTime into a *time.Time in UTC.
func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// uuidString returns a fresh UUID; split out for readability at call sites.
func uuidString() string {
	return uuid.New().String()
}
