// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/models"
)

// mockExecutionStore implements ExecutionStore for testing.
type mockExecutionStore struct {
	mu          sync.Mutex
	updates     []models.SyncExecution
	updateCalls int
	claimCalls  int
	denyClaim   bool
	failWith    error
}

func (m *mockExecutionStore) UpdateExecution(ctx context.Context, exec *models.SyncExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failWith != nil {
		return m.failWith
	}
	m.updates = append(m.updates, *exec)
	return nil
}

func (m *mockExecutionStore) ClaimExecution(ctx context.Context, exec *models.SyncExecution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	if m.failWith != nil {
		return false, m.failWith
	}
	if m.denyClaim {
		return false, nil
	}
	m.updates = append(m.updates, *exec)
	return true, nil
}

func newTestTracker(store *mockExecutionStore, base time.Duration, now time.Time) *Tracker {
	logger := zerolog.Nop()
	tracker := NewTracker(store, &logger, TrackerConfig{BaseRetryDelay: base})
	tracker.now = func() time.Time { return now }
	return tracker
}

func pendingExecution() *models.SyncExecution {
	return &models.SyncExecution{
		ID:         "exec-1",
		ScheduleID: "sched-1",
		Status:     models.ExecutionPending,
		MaxRetries: models.DefaultMaxRetries,
	}
}

func TestTracker_MarkRunning(t *testing.T) {
	store := &mockExecutionStore{}
	now := date(2024, 3, 1)
	tracker := newTestTracker(store, time.Second, now)
	exec := pendingExecution()

	if err := tracker.MarkRunning(context.Background(), exec); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if exec.Status != models.ExecutionRunning {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionRunning)
	}
	if !exec.StartedAt.Equal(now) {
		t.Errorf("StartedAt = %v, want %v", exec.StartedAt, now)
	}
	if store.claimCalls != 1 {
		t.Errorf("ClaimExecution calls = %d, want 1", store.claimCalls)
	}
}

func TestTracker_MarkRunning_LostClaim(t *testing.T) {
	store := &mockExecutionStore{denyClaim: true}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()

	err := tracker.MarkRunning(context.Background(), exec)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("MarkRunning() error = %v, want InvalidTransitionError", err)
	}

	// The losing claimer must not carry local state the store rejected.
	if exec.Status != models.ExecutionPending {
		t.Errorf("Status = %v, want still %v", exec.Status, models.ExecutionPending)
	}
	if !exec.StartedAt.IsZero() {
		t.Errorf("StartedAt = %v, want zero", exec.StartedAt)
	}
}

func TestTracker_MarkRunning_InvalidFromRunning(t *testing.T) {
	store := &mockExecutionStore{}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	err := tracker.MarkRunning(context.Background(), exec)
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("MarkRunning() error = %v, want InvalidTransitionError", err)
	}
	if transitionErr.From != models.ExecutionRunning {
		t.Errorf("transition From = %v, want %v", transitionErr.From, models.ExecutionRunning)
	}
}

func TestTracker_MarkCompleted(t *testing.T) {
	store := &mockExecutionStore{}
	now := date(2024, 3, 1)
	tracker := newTestTracker(store, time.Second, now)
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	counts := models.SyncCounts{RankingsCreated: 3, TracksCreated: 12}
	if err := tracker.MarkCompleted(context.Background(), exec, counts, ""); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if exec.Status != models.ExecutionCompleted {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionCompleted)
	}
	if exec.CompletedAt == nil || !exec.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", exec.CompletedAt, now)
	}
	if exec.Counts != counts {
		t.Errorf("Counts = %+v, want %+v", exec.Counts, counts)
	}
}

func TestTracker_MarkCompleted_InvalidFromPending(t *testing.T) {
	store := &mockExecutionStore{}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()

	err := tracker.MarkCompleted(context.Background(), exec, models.SyncCounts{}, "")
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Errorf("MarkCompleted() from Pending error = %v, want InvalidTransitionError", err)
	}
}

func TestTracker_MarkCompleted_NegativeCounts(t *testing.T) {
	store := &mockExecutionStore{}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	err := tracker.MarkCompleted(context.Background(), exec, models.SyncCounts{RankingsCreated: -1}, "")
	if err == nil {
		t.Error("MarkCompleted() with negative counts should error")
	}
	if store.updateCalls != 0 {
		t.Errorf("UpdateExecution calls = %d, want 0 (nothing persisted)", store.updateCalls)
	}
}

func TestTracker_MarkFailed_SchedulesRetryWithBackoff(t *testing.T) {
	store := &mockExecutionStore{}
	now := date(2024, 3, 1)
	base := time.Second
	tracker := newTestTracker(store, base, now)
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	retrying, err := tracker.MarkFailed(context.Background(), exec, "provider timeout")
	if err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if !retrying {
		t.Error("MarkFailed() retrying = false, want true on first failure")
	}
	if exec.Status != models.ExecutionPending {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionPending)
	}
	if exec.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", exec.RetryCount)
	}
	// delay = base * 2^1
	wantNext := now.Add(2 * base)
	if exec.NextAttemptAt == nil || !exec.NextAttemptAt.Equal(wantNext) {
		t.Errorf("NextAttemptAt = %v, want %v", exec.NextAttemptAt, wantNext)
	}
}

func TestTracker_MarkFailed_BackoffDoubles(t *testing.T) {
	store := &mockExecutionStore{}
	now := date(2024, 3, 1)
	base := time.Second
	tracker := newTestTracker(store, base, now)
	exec := pendingExecution()
	exec.MaxRetries = 5

	ctx := context.Background()
	wantDelays := []time.Duration{2 * base, 4 * base, 8 * base}
	for i, want := range wantDelays {
		if err := tracker.MarkRunning(ctx, exec); err != nil {
			t.Fatalf("MarkRunning() attempt %d error = %v", i+1, err)
		}
		retrying, err := tracker.MarkFailed(ctx, exec, "transient")
		if err != nil {
			t.Fatalf("MarkFailed() attempt %d error = %v", i+1, err)
		}
		if !retrying {
			t.Fatalf("MarkFailed() attempt %d terminalized early", i+1)
		}
		wantNext := now.Add(want)
		if exec.NextAttemptAt == nil || !exec.NextAttemptAt.Equal(wantNext) {
			t.Errorf("attempt %d NextAttemptAt = %v, want %v", i+1, exec.NextAttemptAt, wantNext)
		}
	}
}

// Three consecutive failures exhaust max_retries=3; the fourth call is
// a contract violation.
func TestTracker_RetryBound(t *testing.T) {
	store := &mockExecutionStore{}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tracker.MarkRunning(ctx, exec); err != nil {
			t.Fatalf("MarkRunning() attempt %d error = %v", i+1, err)
		}
		retrying, err := tracker.MarkFailed(ctx, exec, "transient")
		if err != nil {
			t.Fatalf("MarkFailed() attempt %d error = %v", i+1, err)
		}
		if !retrying {
			t.Fatalf("MarkFailed() attempt %d terminalized early", i+1)
		}
	}

	if err := tracker.MarkRunning(ctx, exec); err != nil {
		t.Fatalf("MarkRunning() final attempt error = %v", err)
	}
	retrying, err := tracker.MarkFailed(ctx, exec, "transient")
	if err != nil {
		t.Fatalf("MarkFailed() final attempt error = %v", err)
	}
	if retrying {
		t.Error("MarkFailed() final attempt retrying = true, want false")
	}
	if exec.Status != models.ExecutionFailed {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionFailed)
	}
	if exec.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", exec.RetryCount)
	}

	_, err = tracker.MarkFailed(ctx, exec, "transient")
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Errorf("MarkFailed() after terminal error = %v, want InvalidTransitionError", err)
	}
}

func TestTracker_MarkFailedPermanent(t *testing.T) {
	store := &mockExecutionStore{}
	now := date(2024, 3, 1)
	tracker := newTestTracker(store, time.Second, now)
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	if err := tracker.MarkFailedPermanent(context.Background(), exec, "unknown chart"); err != nil {
		t.Fatalf("MarkFailedPermanent() error = %v", err)
	}
	if exec.Status != models.ExecutionFailed {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionFailed)
	}
	if exec.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 (permanent failures consume no retry)", exec.RetryCount)
	}
	if exec.CompletedAt == nil {
		t.Error("CompletedAt should be set on permanent failure")
	}
}

func TestTracker_MarkCancelled(t *testing.T) {
	store := &mockExecutionStore{}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()
	exec.Status = models.ExecutionRunning

	if err := tracker.MarkCancelled(context.Background(), exec); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	if exec.Status != models.ExecutionCancelled {
		t.Errorf("Status = %v, want %v", exec.Status, models.ExecutionCancelled)
	}

	exec2 := pendingExecution()
	err := tracker.MarkCancelled(context.Background(), exec2)
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Errorf("MarkCancelled() from Pending error = %v, want InvalidTransitionError", err)
	}
}

func TestTracker_PersistFailureSurfaces(t *testing.T) {
	store := &mockExecutionStore{failWith: errors.New("disk full")}
	tracker := newTestTracker(store, time.Second, date(2024, 3, 1))
	exec := pendingExecution()

	if err := tracker.MarkRunning(context.Background(), exec); err == nil {
		t.Error("MarkRunning() should surface store errors")
	}
}
