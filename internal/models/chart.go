// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package models defines the core domain types shared across ChartSync:
// charts, sync frequencies, periods, schedules, executions, and rankings.
package models

import (
	"fmt"
	"time"
)

// FrequencyKind identifies the cadence class of a chart's sync frequency.
type FrequencyKind string

// Sync frequency kinds.
const (
	FrequencyDaily       FrequencyKind = "daily"
	FrequencyWeekly      FrequencyKind = "weekly"
	FrequencyMonthly     FrequencyKind = "monthly"
	FrequencyCustomHours FrequencyKind = "custom_hours"
)

// SyncFrequency describes how often a chart publishes a new ranking
// snapshot. Hours is only meaningful for FrequencyCustomHours and must
// be positive there.
type SyncFrequency struct {
	Kind  FrequencyKind `json:"kind"`
	Hours int           `json:"hours,omitempty"`
}

// String returns a human-readable form, e.g. "weekly" or "every 6h".
func (f SyncFrequency) String() string {
	if f.Kind == FrequencyCustomHours {
		return fmt.Sprintf("every %dh", f.Hours)
	}
	return string(f.Kind)
}

// Daily returns a daily sync frequency.
func Daily() SyncFrequency { return SyncFrequency{Kind: FrequencyDaily} }

// Weekly returns a weekly sync frequency.
func Weekly() SyncFrequency { return SyncFrequency{Kind: FrequencyWeekly} }

// Monthly returns a monthly sync frequency.
func Monthly() SyncFrequency { return SyncFrequency{Kind: FrequencyMonthly} }

// CustomHours returns a fixed-width frequency of n hours.
func CustomHours(n int) SyncFrequency {
	return SyncFrequency{Kind: FrequencyCustomHours, Hours: n}
}

// Chart is an externally-identified ranked list of tracks on a platform
// (e.g. "Spotify US Top 50"). Charts are enrolled for syncing via a
// SyncSchedule (1:1).
type Chart struct {
	ID         string        `json:"id"`
	Slug       string        `json:"slug"`
	Platform   string        `json:"platform"`
	Country    string        `json:"country"`
	Name       string        `json:"name"`
	Frequency  SyncFrequency `json:"frequency"`
	WeekAnchor time.Weekday  `json:"week_anchor"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}
