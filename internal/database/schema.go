// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package database

import (
	"context"
	"fmt"
	"time"
)

// createTableStatements holds the full schema. All columns live in the
// initial CREATE TABLE statements; incremental changes go through
// versioned migrations once real databases exist.
var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS charts (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL,
		country TEXT NOT NULL,
		name TEXT NOT NULL,
		frequency_kind TEXT NOT NULL,
		frequency_hours INTEGER NOT NULL DEFAULT 0,
		week_anchor INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sync_schedules (
		id TEXT PRIMARY KEY,
		chart_id TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		frequency_kind TEXT NOT NULL,
		frequency_hours INTEGER NOT NULL DEFAULT 0,
		week_anchor INTEGER NOT NULL DEFAULT 1,
		last_sync_at TIMESTAMP,
		next_sync_at TIMESTAMP,
		total_executions BIGINT NOT NULL DEFAULT 0,
		successful_executions BIGINT NOT NULL DEFAULT 0,
		failed_executions BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sync_executions (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		error_message TEXT NOT NULL DEFAULT '',
		rankings_created INTEGER NOT NULL DEFAULT 0,
		rankings_updated INTEGER NOT NULL DEFAULT 0,
		tracks_created INTEGER NOT NULL DEFAULT 0,
		tracks_updated INTEGER NOT NULL DEFAULT 0,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		next_attempt_at TIMESTAMP,
		triggered_by TEXT NOT NULL DEFAULT 'schedule',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		isrc TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chart_rankings (
		id TEXT PRIMARY KEY,
		chart_id TEXT NOT NULL,
		period_start TIMESTAMP NOT NULL,
		period_end TIMESTAMP NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		entry_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (chart_id, period_start)
	)`,

	`CREATE TABLE IF NOT EXISTS ranking_entries (
		id TEXT PRIMARY KEY,
		ranking_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		track_id TEXT NOT NULL,
		streams BIGINT NOT NULL DEFAULT 0,
		previous_position INTEGER,
		UNIQUE (ranking_id, position)
	)`,
}

// createIndexStatements covers the hot query paths: due-schedule scans,
// retryable-execution scans, and gap detection period lookups.
var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_schedules_due ON sync_schedules (is_active, next_sync_at)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_schedule ON sync_executions (schedule_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_retryable ON sync_executions (status, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_chart_period ON chart_rankings (chart_id, period_start)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_ranking ON ranking_entries (ranking_id)`,
}

// createTables creates all application tables.
func (db *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, stmt := range createTableStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// createIndexes creates all secondary indexes.
func (db *DB) createIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, stmt := range createIndexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
