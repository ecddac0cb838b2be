// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"sort"
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

// MissingPeriods returns the subset of expected periods for which no
// timestamp in existing falls within [start, end), preserving ascending
// order so the orchestrator backfills oldest-first. Oldest-first order
// matters: trend and previous-position calculations assume the
// immediately preceding period is already stored.
//
// Membership is half-open: a timestamp at a period's start covers that
// period. A timestamp exactly at a period's end covers the following
// period when one starts there (the normal contiguous case); when no
// expected period starts at that boundary, it counts toward the earlier
// period instead of being discarded. Each timestamp covers at most one
// period.
//
// Pure function; an empty expected sequence yields an empty result.
func MissingPeriods(expected []models.Period, existing []time.Time) []models.Period {
	if len(expected) == 0 {
		return nil
	}

	ts := make([]time.Time, len(existing))
	for i, t := range existing {
		ts[i] = t.UTC()
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	missing := make([]models.Period, 0)
	idx := 0
	for i, p := range expected {
		// Skip stray timestamps before this period.
		for idx < len(ts) && ts[idx].Before(p.Start) {
			idx++
		}
		covered := false
		for idx < len(ts) && ts[idx].Before(p.End) {
			covered = true
			idx++
		}
		// Boundary timestamp: leave it for the adjacent period when one
		// starts exactly at p.End, otherwise claim it for this period.
		if idx < len(ts) && ts[idx].Equal(p.End) {
			if i+1 >= len(expected) || !expected[i+1].Start.Equal(p.End) {
				covered = true
				idx++
			}
		}
		if !covered {
			missing = append(missing, p)
		}
	}
	return missing
}
