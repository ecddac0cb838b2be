// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"testing"
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

func weeklyPeriods(t *testing.T, horizon, now time.Time) []models.Period {
	t.Helper()
	periods, err := ExpectedPeriods(models.Weekly(), time.Monday, horizon, now)
	if err != nil {
		t.Fatalf("ExpectedPeriods() error = %v", err)
	}
	return periods
}

func TestMissingPeriods_EmptyExpected(t *testing.T) {
	missing := MissingPeriods(nil, []time.Time{date(2024, 1, 1)})
	if len(missing) != 0 {
		t.Errorf("MissingPeriods(nil, ...) = %v, want empty", missing)
	}
}

func TestMissingPeriods_NothingExists(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 22))

	missing := MissingPeriods(expected, nil)
	assertPeriods(t, missing, expected)
}

func TestMissingPeriods_FullyCovered(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 22))
	existing := []time.Time{date(2024, 1, 1), date(2024, 1, 8), date(2024, 1, 15)}

	missing := MissingPeriods(expected, existing)
	if len(missing) != 0 {
		t.Errorf("MissingPeriods() with full coverage = %v, want empty", missing)
	}
}

// Three weekly periods with only the middle week stored: the first and
// third must come back, oldest first.
func TestMissingPeriods_WeeklyGapScenario(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 22))
	existing := []time.Time{date(2024, 1, 8)}

	missing := MissingPeriods(expected, existing)
	want := []models.Period{
		{Start: date(2024, 1, 1), End: date(2024, 1, 8)},
		{Start: date(2024, 1, 15), End: date(2024, 1, 22)},
	}
	assertPeriods(t, missing, want)
}

func TestMissingPeriods_MidPeriodTimestampCovers(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 15))
	existing := []time.Time{time.Date(2024, 1, 3, 14, 0, 0, 0, time.UTC)}

	missing := MissingPeriods(expected, existing)
	want := []models.Period{
		{Start: date(2024, 1, 8), End: date(2024, 1, 15)},
	}
	assertPeriods(t, missing, want)
}

// A timestamp on the boundary between two periods covers the period it
// starts, not the one it ends.
func TestMissingPeriods_BoundaryBelongsToStartingPeriod(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 15))
	existing := []time.Time{date(2024, 1, 8)}

	missing := MissingPeriods(expected, existing)
	want := []models.Period{
		{Start: date(2024, 1, 1), End: date(2024, 1, 8)},
	}
	assertPeriods(t, missing, want)
}

// A timestamp at the trailing edge of the final period has no later
// period to start, so it counts toward the earlier one.
func TestMissingPeriods_TrailingBoundaryCountsBack(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 15))
	existing := []time.Time{date(2024, 1, 1), date(2024, 1, 15)}

	missing := MissingPeriods(expected, existing)
	if len(missing) != 0 {
		t.Errorf("MissingPeriods() = %v, want empty (trailing boundary covers last period)", missing)
	}
}

func TestMissingPeriods_StrayTimestampsIgnored(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 15))
	existing := []time.Time{
		date(2023, 12, 1), // before all periods
		date(2024, 3, 1),  // after all periods
	}

	missing := MissingPeriods(expected, existing)
	assertPeriods(t, missing, expected)
}

func TestMissingPeriods_UnsortedExistingInput(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 1, 22))
	existing := []time.Time{date(2024, 1, 15), date(2024, 1, 1)}

	missing := MissingPeriods(expected, existing)
	want := []models.Period{
		{Start: date(2024, 1, 8), End: date(2024, 1, 15)},
	}
	assertPeriods(t, missing, want)
}

// Feeding the detector's own output back in as newly existing data must
// yield the empty set.
func TestMissingPeriods_RoundTrip(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 2, 5))
	existing := []time.Time{date(2024, 1, 8)}

	missing := MissingPeriods(expected, existing)
	if len(missing) == 0 {
		t.Fatal("expected at least one missing period for round-trip")
	}

	backfilled := make([]time.Time, 0, len(existing)+len(missing))
	backfilled = append(backfilled, existing...)
	for _, p := range missing {
		backfilled = append(backfilled, p.Start)
	}

	if again := MissingPeriods(expected, backfilled); len(again) != 0 {
		t.Errorf("MissingPeriods() after backfill = %v, want empty", again)
	}
}

func TestMissingPeriods_SubsetOfExpected(t *testing.T) {
	expected := weeklyPeriods(t, date(2024, 1, 1), date(2024, 2, 12))
	existing := []time.Time{date(2024, 1, 8), date(2024, 1, 29)}

	missing := MissingPeriods(expected, existing)

	index := make(map[string]bool, len(expected))
	for _, p := range expected {
		index[p.String()] = true
	}
	for _, p := range missing {
		if !index[p.String()] {
			t.Errorf("missing period %v is not in expected", p)
		}
	}

	for i := 1; i < len(missing); i++ {
		if !missing[i-1].Start.Before(missing[i].Start) {
			t.Errorf("missing periods not ascending: %v before %v", missing[i-1], missing[i])
		}
	}
}
