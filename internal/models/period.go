// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package models

import "time"

// Period is a half-open time interval [Start, End) representing one
// expected ranking snapshot. Periods generated for a given frequency are
// contiguous and non-overlapping. Invariant: Start < End, both UTC.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Duration returns the period length.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// String renders the interval in RFC 3339, e.g.
// "2024-01-01T00:00:00Z/2024-01-08T00:00:00Z".
func (p Period) String() string {
	return p.Start.Format(time.RFC3339) + "/" + p.End.Format(time.RFC3339)
}
