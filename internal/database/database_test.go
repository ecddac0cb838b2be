// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package database

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/musicchartsai/chartsync/internal/models"
)

func TestDecodeFrequency(t *testing.T) {
	tests := []struct {
		kind  string
		hours int
		want  models.SyncFrequency
	}{
		{"weekly", 0, models.Weekly()},
		{"daily", 0, models.Daily()},
		{"monthly", 0, models.Monthly()},
		{"custom_hours", 6, models.CustomHours(6)},
	}

	for _, tt := range tests {
		if got := decodeFrequency(tt.kind, tt.hours); got != tt.want {
			t.Errorf("decodeFrequency(%q, %d) = %+v, want %+v", tt.kind, tt.hours, got, tt.want)
		}
	}
}

func TestNullableTime(t *testing.T) {
	if got := nullableTime(sql.NullTime{}); got != nil {
		t.Errorf("nullableTime(invalid) = %v, want nil", got)
	}

	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2024, 1, 8, 1, 0, 0, 0, loc)
	got := nullableTime(sql.NullTime{Time: ts, Valid: true})
	if got == nil {
		t.Fatal("nullableTime(valid) = nil")
	}
	if got.Location() != time.UTC {
		t.Errorf("nullableTime location = %v, want UTC", got.Location())
	}
	if !got.Equal(ts) {
		t.Errorf("nullableTime = %v, want instant %v", got, ts)
	}
}

func TestNullableTimeValue(t *testing.T) {
	if got := nullableTimeValue(time.Time{}); got != nil {
		t.Errorf("nullableTimeValue(zero) = %v, want nil", got)
	}

	ts := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	got := nullableTimeValue(ts)
	if gotTime, ok := got.(time.Time); !ok || !gotTime.Equal(ts) {
		t.Errorf("nullableTimeValue = %v, want %v", got, ts)
	}
}

type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

func TestRequireRowAffected(t *testing.T) {
	if err := requireRowAffected(fakeResult{rows: 1}, "chart", "c-1"); err != nil {
		t.Errorf("requireRowAffected(1 row) error = %v", err)
	}

	err := requireRowAffected(fakeResult{rows: 0}, "chart", "c-1")
	if err == nil {
		t.Fatal("requireRowAffected(0 rows) should error")
	}
	if !strings.Contains(err.Error(), "c-1") {
		t.Errorf("error %v should name the missing ID", err)
	}
}
