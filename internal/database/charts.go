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

	"github.com/google/uuid"

	"github.com/musicchartsai/chartsync/internal/models"
)

// CreateChart inserts a new chart. An ID is generated when not provided.
func (db *DB) CreateChart(ctx context.Context, chart *models.Chart) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if chart.ID == "" {
		chart.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	chart.CreatedAt = now
	chart.UpdatedAt = now

	query := `
		INSERT INTO charts (
			id, slug, platform, country, name,
			frequency_kind, frequency_hours, week_anchor,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.conn.ExecContext(ctx, query,
		chart.ID,
		chart.Slug,
		chart.Platform,
		chart.Country,
		chart.Name,
		string(chart.Frequency.Kind),
		chart.Frequency.Hours,
		int(chart.WeekAnchor),
		chart.CreatedAt,
		chart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chart: %w", err)
	}
	return nil
}

// GetChart retrieves a chart by ID. Returns (nil, nil) when absent.
func (db *DB) GetChart(ctx context.Context, id string) (*models.Chart, error) {
	return db.getChartWhere(ctx, "id = ?", id)
}

// GetChartBySlug retrieves a chart by its unique slug. Returns
// (nil, nil) when absent.
func (db *DB) GetChartBySlug(ctx context.Context, slug string) (*models.Chart, error) {
	return db.getChartWhere(ctx, "slug = ?", slug)
}

func (db *DB) getChartWhere(ctx context.Context, where string, arg any) (*models.Chart, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT id, slug, platform, country, name,
			frequency_kind, frequency_hours, week_anchor,
			created_at, updated_at
		FROM charts
		WHERE ` + where

	chart, err := scanChart(db.conn.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return chart, err
}

// ListCharts returns all charts ordered by platform, then slug.
func (db *DB) ListCharts(ctx context.Context) ([]models.Chart, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
		SELECT id, slug, platform, country, name,
			frequency_kind, frequency_hours, week_anchor,
			created_at, updated_at
		FROM charts
		ORDER BY platform, slug
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query charts: %w", err)
	}
	defer closeQuietly(rows)

	var charts []models.Chart
	for rows.Next() {
		chart, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		charts = append(charts, *chart)
	}
	return charts, rows.Err()
}

// UpdateChart persists mutable chart fields.
func (db *DB) UpdateChart(ctx context.Context, chart *models.Chart) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	chart.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE charts
		SET name = ?, platform = ?, country = ?,
			frequency_kind = ?, frequency_hours = ?, week_anchor = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := db.conn.ExecContext(ctx, query,
		chart.Name,
		chart.Platform,
		chart.Country,
		string(chart.Frequency.Kind),
		chart.Frequency.Hours,
		int(chart.WeekAnchor),
		chart.UpdatedAt,
		chart.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chart: %w", err)
	}
	return requireRowAffected(result, "chart", chart.ID)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChart(row rowScanner) (*models.Chart, error) {
	var (
		chart      models.Chart
		freqKind   string
		freqHours  int
		weekAnchor int
	)
	err := row.Scan(
		&chart.ID,
		&chart.Slug,
		&chart.Platform,
		&chart.Country,
		&chart.Name,
		&freqKind,
		&freqHours,
		&weekAnchor,
		&chart.CreatedAt,
		&chart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chart: %w", err)
	}
	chart.Frequency = decodeFrequency(freqKind, freqHours)
	chart.WeekAnchor = time.Weekday(weekAnchor)
	return &chart, nil
}

// decodeFrequency rebuilds a SyncFrequency from its two stored columns.
func decodeFrequency(kind string, hours int) models.SyncFrequency {
	return models.SyncFrequency{Kind: models.FrequencyKind(kind), Hours: hours}
}

// requireRowAffected converts a zero-row UPDATE into a not-found error.
func requireRowAffected(result sql.Result, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}
