// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedSlogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	zl := NewTestLogger(&buf)
	return slog.New(NewSlogHandlerWithLogger(zl)), &buf
}

func TestSlogHandler_LevelsAndAttrs(t *testing.T) {
	slogger, buf := newBufferedSlogger(t)

	slogger.Info("cycle complete",
		slog.String("schedule_id", "sched-1"),
		slog.Int("synced", 3),
		slog.Duration("elapsed", 250*time.Millisecond),
		slog.Bool("retried", false),
	)

	out := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"message":"cycle complete"`,
		`"schedule_id":"sched-1"`,
		`"synced":3`,
		`"retried":false`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}

	buf.Reset()
	slogger.Error("fetch failed")
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error level: %s", buf.String())
	}

	buf.Reset()
	slogger.Warn("slow cycle")
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn level: %s", buf.String())
	}
}

func TestSlogHandler_WithAttrsAndGroup(t *testing.T) {
	slogger, buf := newBufferedSlogger(t)

	scoped := slogger.With(slog.String("supervisor", "chartsync")).WithGroup("service")
	scoped.Info("started", slog.String("name", "sync-layer"))

	// Attrs added before the group keep their bare keys; only attrs
	// added afterward are qualified.
	out := buf.String()
	if !strings.Contains(out, `"supervisor":"chartsync"`) {
		t.Errorf("pre-configured attr lost: %s", out)
	}
	if strings.Contains(out, `"service.supervisor"`) {
		t.Errorf("pre-group attr wrongly qualified: %s", out)
	}
	if !strings.Contains(out, `"service.name":"sync-layer"`) {
		t.Errorf("group prefix missing: %s", out)
	}

	buf.Reset()
	scoped.With(slog.String("id", "runner-1")).Info("restarted")
	if !strings.Contains(buf.String(), `"service.id":"runner-1"`) {
		t.Errorf("post-group attr not qualified: %s", buf.String())
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	zl := NewTestLogger(&buf).Level(zerolog.WarnLevel)
	handler := NewSlogHandlerWithLogger(zl)

	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
