// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package models

import "time"

// SyncSchedule is the enrollment and cadence record governing when a
// chart is next synced. One schedule exists per chart (1:1).
//
// NextSyncAt is always derived from the schedule's frequency boundary
// logic after an execution terminalizes, never set free-form; the one
// exception is the explicit "sync now" operation, which sets it to the
// current time. Counters are monotonic non-decreasing. Schedules are
// deactivated via IsActive=false, never deleted while the chart exists.
type SyncSchedule struct {
	ID      string `json:"id"`
	ChartID string `json:"chart_id"`

	IsActive   bool          `json:"is_active"`
	Frequency  SyncFrequency `json:"frequency"`
	WeekAnchor time.Weekday  `json:"week_anchor"`

	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`

	TotalExecutions      int64 `json:"total_executions"`
	SuccessfulExecutions int64 `json:"successful_executions"`
	FailedExecutions     int64 `json:"failed_executions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
