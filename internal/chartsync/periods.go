// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package chartsync implements the chart sync scheduling core: period
// calculation, gap detection, execution tracking, schedule due-ness,
// and the orchestration cycle that ties them to storage and the
// external ranking provider.
//
// Dependency order within the package, leaves first: period calculator
// (periods.go) -> gap detector (gaps.go) -> execution tracker
// (tracker.go) -> sync scheduler (scheduler.go) -> orchestrator
// (orchestrator.go, driven by the periodic runner in runner.go).
package chartsync

import (
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

// MaxLookback bounds how far back periods are ever generated,
// regardless of chart age or horizon.
const MaxLookback = time.Hour * 24 * 365

// ExpectedPeriods returns the ordered (oldest first) sequence of
// periods a chart with the given frequency is expected to have between
// horizonStart and now.
//
// Boundary alignment per frequency:
//   - Daily: midnight UTC.
//   - Weekly: midnight UTC on weekAnchor (7-day periods).
//   - Monthly: the 1st of each month (calendar arithmetic, so month
//     lengths vary).
//   - CustomHours(n): n-hour blocks phased on horizonStart.
//
// horizonStart is clamped to one year before now; no returned period
// starts earlier than that. The function is pure and safe for
// concurrent use.
func ExpectedPeriods(freq models.SyncFrequency, weekAnchor time.Weekday, horizonStart, now time.Time) ([]models.Period, error) {
	if err := ValidateFrequency(freq); err != nil {
		return nil, err
	}

	now = now.UTC()
	horizonStart = horizonStart.UTC()

	oldest := now.Add(-MaxLookback)
	if horizonStart.Before(oldest) {
		horizonStart = oldest
	}
	if !horizonStart.Before(now) {
		return nil, nil
	}

	start := floorBoundary(freq, weekAnchor, horizonStart)
	// Floor alignment of a clamped horizon can cross the one-year
	// line; advance one step so the lookback bound holds.
	if start.Before(oldest) {
		start = advanceBoundary(freq, start)
	}

	var periods []models.Period
	for start.Before(now) {
		end := advanceBoundary(freq, start)
		periods = append(periods, models.Period{Start: start, End: end})
		start = end
	}
	return periods, nil
}

// NextBoundary returns the next natural period boundary strictly after
// from, for use as a schedule's next sync time. CustomHours has no
// standing anchor at scheduling time, so its next boundary is simply
// from plus the interval, which keeps next_sync_at deterministic given
// the terminal time.
func NextBoundary(freq models.SyncFrequency, weekAnchor time.Weekday, from time.Time) (time.Time, error) {
	if err := ValidateFrequency(freq); err != nil {
		return time.Time{}, err
	}

	from = from.UTC()
	if freq.Kind == models.FrequencyCustomHours {
		return from.Add(time.Duration(freq.Hours) * time.Hour), nil
	}
	return advanceBoundary(freq, floorBoundary(freq, weekAnchor, from)), nil
}

// floorBoundary aligns t down to the nearest boundary for freq.
// For CustomHours the phase anchor is the horizon itself, so t is
// already a boundary.
func floorBoundary(freq models.SyncFrequency, weekAnchor time.Weekday, t time.Time) time.Time {
	switch freq.Kind {
	case models.FrequencyDaily:
		return midnight(t)
	case models.FrequencyWeekly:
		day := midnight(t)
		offset := (int(day.Weekday()) - int(weekAnchor) + 7) % 7
		return day.AddDate(0, 0, -offset)
	case models.FrequencyMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // FrequencyCustomHours
		return t
	}
}

// advanceBoundary moves one period forward from a boundary.
func advanceBoundary(freq models.SyncFrequency, boundary time.Time) time.Time {
	switch freq.Kind {
	case models.FrequencyDaily:
		return boundary.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return boundary.AddDate(0, 0, 7)
	case models.FrequencyMonthly:
		return boundary.AddDate(0, 1, 0)
	default: // FrequencyCustomHours
		return boundary.Add(time.Duration(freq.Hours) * time.Hour)
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
