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

// ScheduleStore persists sync schedule state.
type ScheduleStore interface {
	UpdateSchedule(ctx context.Context, schedule *models.SyncSchedule) error
}

// Scheduler owns schedule due-ness and next-sync computation. It is the
// only writer of SyncSchedule state after enrollment.
type Scheduler struct {
	store  ScheduleStore
	logger zerolog.Logger
}

// NewScheduler creates a schedule manager backed by store.
func NewScheduler(store ScheduleStore, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		logger: logger.With().Str("component", "sync-scheduler").Logger(),
	}
}

// IsDue reports whether the schedule should run at now: it must be
// active and either never scheduled (next_sync_at unset) or past its
// next sync time.
func (s *Scheduler) IsDue(schedule *models.SyncSchedule, now time.Time) bool {
	if !schedule.IsActive {
		return false
	}
	return schedule.NextSyncAt == nil || !now.Before(*schedule.NextSyncAt)
}

// OnExecutionTerminal updates schedule state after an execution reaches
// a terminal status. It must be called exactly once per terminal
// execution.
//
// last_sync_at advances only on Completed. The success/failure counter
// increments match the terminal status; Cancelled counts toward
// neither. next_sync_at always advances to the next natural boundary
// from now, regardless of outcome, so a permanently failing chart waits
// a full period rather than retry-storming. When the boundary cannot be
// computed (malformed frequency) the schedule is deactivated instead,
// with the counters still persisted; leaving it due would re-create and
// re-fail an execution every cycle.
func (s *Scheduler) OnExecutionTerminal(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution, now time.Time) error {
	if !exec.Status.IsTerminal() {
		return fmt.Errorf("execution %s is not terminal (status %s)", exec.ID, exec.Status)
	}

	now = now.UTC()
	switch exec.Status {
	case models.ExecutionCompleted:
		ts := now
		schedule.LastSyncAt = &ts
		schedule.SuccessfulExecutions++
	case models.ExecutionFailed:
		schedule.FailedExecutions++
	case models.ExecutionCancelled:
		// Forward progress only; neither counter moves.
	}
	schedule.TotalExecutions++

	schedule.UpdatedAt = now
	next, err := NextBoundary(schedule.Frequency, schedule.WeekAnchor, now)
	if err != nil {
		schedule.IsActive = false
		if updateErr := s.store.UpdateSchedule(ctx, schedule); updateErr != nil {
			return fmt.Errorf("failed to persist schedule %s after execution %s: %w", schedule.ID, exec.ID, updateErr)
		}
		s.logger.Error().Err(err).
			Str("schedule_id", schedule.ID).
			Str("execution_id", exec.ID).
			Msg("Schedule deactivated: next sync time could not be computed")
		return nil
	}
	schedule.NextSyncAt = &next

	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return fmt.Errorf("failed to persist schedule %s after execution %s: %w", schedule.ID, exec.ID, err)
	}

	s.logger.Debug().
		Str("schedule_id", schedule.ID).
		Str("execution_id", exec.ID).
		Str("status", string(exec.Status)).
		Time("next_sync_at", next).
		Msg("Schedule advanced after terminal execution")
	return nil
}

// Activate enables a schedule. By default the schedule becomes due
// immediately; with alignToBoundary it waits for the next natural
// period boundary instead.
func (s *Scheduler) Activate(ctx context.Context, schedule *models.SyncSchedule, now time.Time, alignToBoundary bool) error {
	now = now.UTC()
	next := now
	if alignToBoundary {
		boundary, err := NextBoundary(schedule.Frequency, schedule.WeekAnchor, now)
		if err != nil {
			return fmt.Errorf("failed to compute activation boundary for schedule %s: %w", schedule.ID, err)
		}
		next = boundary
	}

	schedule.IsActive = true
	schedule.NextSyncAt = &next
	schedule.UpdatedAt = now
	return s.store.UpdateSchedule(ctx, schedule)
}

// Deactivate disables a schedule. The schedule record is retained;
// charts are never unenrolled by deletion.
func (s *Scheduler) Deactivate(ctx context.Context, schedule *models.SyncSchedule, now time.Time) error {
	schedule.IsActive = false
	schedule.UpdatedAt = now.UTC()
	return s.store.UpdateSchedule(ctx, schedule)
}

// SyncNow marks an active schedule due immediately. Manual triggers
// reuse the normal orchestration path; there is no separate code path
// for human-initiated syncs.
func (s *Scheduler) SyncNow(ctx context.Context, schedule *models.SyncSchedule, now time.Time) error {
	if !schedule.IsActive {
		return fmt.Errorf("schedule %s is not active", schedule.ID)
	}
	now = now.UTC()
	schedule.NextSyncAt = &now
	schedule.UpdatedAt = now
	return s.store.UpdateSchedule(ctx, schedule)
}
