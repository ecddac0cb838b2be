// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

// ExistingPeriodStarts returns the period-start timestamps of rankings
// already stored for the chart within [from, to], ascending. This feeds
// gap detection.
func (db *DB) ExistingPeriodStarts(ctx context.Context, chartID string, from, to time.Time) ([]time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT period_start
		FROM chart_rankings
		WHERE chart_id = ? AND period_start >= ? AND period_start <= ?
		ORDER BY period_start
	`
	rows, err := db.conn.QueryContext(ctx, query, chartID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query period starts: %w", err)
	}
	defer closeQuietly(rows)

	var starts []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan period start: %w", err)
		}
		starts = append(starts, ts.UTC())
	}
	return starts, rows.Err()
}

// UpsertRanking stores one fetched ranking snapshot and its entries in
// a single transaction. Tracks are resolved by external ID; re-fetching
// an already-stored period replaces its entries. Previous positions are
// carried over from the chart's immediately preceding stored period so
// trend queries stay cheap.
func (db *DB) UpsertRanking(ctx context.Context, chartID string, period models.Period, entries []models.FetchedEntry) (models.SyncCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var counts models.SyncCounts

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	trackIDs := make(map[string]string, len(entries))
	for _, entry := range entries {
		if _, done := trackIDs[entry.TrackExternalID]; done {
			continue
		}
		trackID, created, err := upsertTrack(ctx, tx, entry)
		if err != nil {
			return counts, err
		}
		trackIDs[entry.TrackExternalID] = trackID
		if created {
			counts.TracksCreated++
		} else {
			counts.TracksUpdated++
		}
	}

	previous, err := previousPositions(ctx, tx, chartID, period.Start)
	if err != nil {
		return counts, err
	}

	rankingID, created, err := upsertRankingRow(ctx, tx, chartID, period, len(entries))
	if err != nil {
		return counts, err
	}
	if created {
		counts.RankingsCreated++
	} else {
		counts.RankingsUpdated++
	}

	for _, entry := range entries {
		var prev any
		if p, ok := previous[trackIDs[entry.TrackExternalID]]; ok {
			prev = p
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ranking_entries (id, ranking_id, position, track_id, streams, previous_position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuidString(), rankingID, entry.Position, trackIDs[entry.TrackExternalID], entry.Streams, prev,
		)
		if err != nil {
			return counts, fmt.Errorf("failed to insert ranking entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("failed to commit ranking: %w", err)
	}
	return counts, nil
}

// upsertTrack resolves a fetched entry to a track row, creating or
// refreshing it by external ID. Returns the track ID and whether it was
// created.
func upsertTrack(ctx context.Context, tx *sql.Tx, entry models.FetchedEntry) (string, bool, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tracks WHERE external_id = ?`, entry.TrackExternalID).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE tracks SET title = ?, artist = ?, isrc = ? WHERE id = ?`,
			entry.Title, entry.Artist, entry.ISRC, id)
		if err != nil {
			return "", false, fmt.Errorf("failed to update track: %w", err)
		}
		return id, false, nil

	case errors.Is(err, sql.ErrNoRows):
		id = uuidString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracks (id, external_id, title, artist, isrc, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, entry.TrackExternalID, entry.Title, entry.Artist, entry.ISRC, time.Now().UTC())
		if err != nil {
			return "", false, fmt.Errorf("failed to insert track: %w", err)
		}
		return id, true, nil

	default:
		return "", false, fmt.Errorf("failed to look up track: %w", err)
	}
}

// upsertRankingRow creates the ranking snapshot row, or refreshes it
// and clears its entries when the period was stored before.
func upsertRankingRow(ctx context.Context, tx *sql.Tx, chartID string, period models.Period, entryCount int) (string, bool, error) {
	now := time.Now().UTC()

	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM chart_rankings WHERE chart_id = ? AND period_start = ?`,
		chartID, period.Start.UTC()).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE chart_rankings SET period_end = ?, fetched_at = ?, entry_count = ? WHERE id = ?`,
			period.End.UTC(), now, entryCount, id); err != nil {
			return "", false, fmt.Errorf("failed to update ranking: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ranking_entries WHERE ranking_id = ?`, id); err != nil {
			return "", false, fmt.Errorf("failed to clear ranking entries: %w", err)
		}
		return id, false, nil

	case errors.Is(err, sql.ErrNoRows):
		id = uuidString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chart_rankings (id, chart_id, period_start, period_end, fetched_at, entry_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, chartID, period.Start.UTC(), period.End.UTC(), now, entryCount)
		if err != nil {
			return "", false, fmt.Errorf("failed to insert ranking: %w", err)
		}
		return id, true, nil

	default:
		return "", false, fmt.Errorf("failed to look up ranking: %w", err)
	}
}

// previousPositions returns track_id -> position for the chart's latest
// stored period strictly before start. Empty when no earlier period exists.
func previousPositions(ctx context.Context, tx *sql.Tx, chartID string, start time.Time) (map[string]int, error) {
	query := `
		SELECT e.track_id, e.position
		FROM ranking_entries e
		JOIN chart_rankings r ON r.id = e.ranking_id
		WHERE r.chart_id = ? AND r.period_start = (
			SELECT MAX(period_start) FROM chart_rankings
			WHERE chart_id = ? AND period_start < ?
		)
	`
	rows, err := tx.QueryContext(ctx, query, chartID, chartID, start.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query previous positions: %w", err)
	}
	defer closeQuietly(rows)

	positions := make(map[string]int)
	for rows.Next() {
		var trackID string
		var position int
		if err := rows.Scan(&trackID, &position); err != nil {
			return nil, fmt.Errorf("failed to scan previous position: %w", err)
		}
		positions[trackID] = position
	}
	return positions, rows.Err()
}

// ListRankings returns stored ranking snapshots for a chart, newest
// period first.
func (db *DB) ListRankings(ctx context.Context, chartID string, limit int) ([]models.ChartRanking, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, chart_id, period_start, period_end, fetched_at, entry_count
		FROM chart_rankings
		WHERE chart_id = ?
		ORDER BY period_start DESC
		LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, chartID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rankings: %w", err)
	}
	defer closeQuietly(rows)

	var rankings []models.ChartRanking
	for rows.Next() {
		var r models.ChartRanking
		if err := rows.Scan(&r.ID, &r.ChartID, &r.PeriodStart, &r.PeriodEnd, &r.FetchedAt, &r.EntryCount); err != nil {
			return nil, fmt.Errorf("failed to scan ranking: %w", err)
		}
		r.PeriodStart = r.PeriodStart.UTC()
		r.PeriodEnd = r.PeriodEnd.UTC()
		r.FetchedAt = r.FetchedAt.UTC()
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}

// GetTrends returns the chart's most recent ranking joined with track
// metadata and position deltas against the preceding period.
func (db *DB) GetTrends(ctx context.Context, chartID string, limit int) ([]models.TrendEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT e.position, e.previous_position, t.title, t.artist, e.streams
		FROM ranking_entries e
		JOIN chart_rankings r ON r.id = e.ranking_id
		JOIN tracks t ON t.id = e.track_id
		WHERE r.chart_id = ? AND r.period_start = (
			SELECT MAX(period_start) FROM chart_rankings WHERE chart_id = ?
		)
		ORDER BY e.position
		LIMIT ?
	`
	rows, err := db.conn.QueryContext(ctx, query, chartID, chartID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer closeQuietly(rows)

	var trends []models.TrendEntry
	for rows.Next() {
		var (
			entry models.TrendEntry
			prev  sql.NullInt64
		)
		if err := rows.Scan(&entry.Position, &prev, &entry.Title, &entry.Artist, &entry.Streams); err != nil {
			return nil, fmt.Errorf("failed to scan trend entry: %w", err)
		}
		if prev.Valid {
			p := int(prev.Int64)
			entry.PreviousPosition = &p
			delta := p - entry.Position // positive = moved up
			entry.PositionDelta = &delta
		}
		trends = append(trends, entry)
	}
	return trends, rows.Err()
}
