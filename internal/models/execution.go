// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package models

import "time"

// ExecutionStatus is the lifecycle state of a sync execution.
type ExecutionStatus string

// Execution lifecycle states. Pending -> Running -> {Completed, Failed,
// Cancelled}. A failed attempt returns to Pending with a backoff delay
// while retries remain; once RetryCount reaches MaxRetries, Failed is
// terminal.
const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// DefaultMaxRetries bounds business-level retries per execution.
const DefaultMaxRetries = 3

// SyncCounts aggregates the record counts produced by a sync run.
type SyncCounts struct {
	RankingsCreated int `json:"rankings_created"`
	RankingsUpdated int `json:"rankings_updated"`
	TracksCreated   int `json:"tracks_created"`
	TracksUpdated   int `json:"tracks_updated"`
}

// Add accumulates another set of counts into c.
func (c *SyncCounts) Add(other SyncCounts) {
	c.RankingsCreated += other.RankingsCreated
	c.RankingsUpdated += other.RankingsUpdated
	c.TracksCreated += other.TracksCreated
	c.TracksUpdated += other.TracksUpdated
}

// SyncExecution records one concrete attempt to sync a chart's
// schedule, covering possibly multiple missing periods. Executions are
// immutable once terminal; per-period failures are aggregated into
// ErrorMessage as a structured JSON summary rather than raised
// individually.
type SyncExecution struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id"`

	Status ExecutionStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`

	Counts SyncCounts `json:"counts"`

	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`

	// TriggeredBy records what initiated the execution: "schedule",
	// "manual", or "retry".
	TriggeredBy string `json:"triggered_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
