// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package models

import "time"

// Track is a music track referenced by ranking entries. Tracks are
// deduplicated by ExternalID (the provider's identifier).
type Track struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	ISRC       string    `json:"isrc,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChartRanking is one stored ranking snapshot for a chart period.
// PeriodStart is the timestamp the gap detector matches against when
// deciding whether a period is already covered.
type ChartRanking struct {
	ID          string    `json:"id"`
	ChartID     string    `json:"chart_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	FetchedAt   time.Time `json:"fetched_at"`
	EntryCount  int       `json:"entry_count"`
}

// RankingEntry is one position within a stored ranking snapshot.
type RankingEntry struct {
	ID               string `json:"id"`
	RankingID        string `json:"ranking_id"`
	Position         int    `json:"position"`
	TrackID          string `json:"track_id"`
	Streams          int64  `json:"streams,omitempty"`
	PreviousPosition *int   `json:"previous_position,omitempty"`
}

// FetchedEntry is one normalized ranking entry as returned by the
// external ranking provider, before tracks are resolved against
// storage.
type FetchedEntry struct {
	Position        int    `json:"position"`
	Streams         int64  `json:"streams,omitempty"`
	TrackExternalID string `json:"track_external_id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	ISRC            string `json:"isrc,omitempty"`
}

// TrendEntry is one row of the chart trend view: a track's position in
// the most recent period compared against the immediately preceding
// period. PositionDelta is positive when the track moved up.
type TrendEntry struct {
	Position         int    `json:"position"`
	PreviousPosition *int   `json:"previous_position,omitempty"`
	PositionDelta    *int   `json:"position_delta,omitempty"`
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	Streams          int64  `json:"streams,omitempty"`
}
