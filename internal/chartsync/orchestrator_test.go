// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/models"
)

// orchestratorStore implements Store in memory for testing, with the
// same check-then-create guard semantics the database provides.
type orchestratorStore struct {
	mu         sync.Mutex
	schedules  map[string]*models.SyncSchedule
	charts     map[string]*models.Chart
	executions map[string]*models.SyncExecution
	existing   map[string][]time.Time

	upsertCounts models.SyncCounts
	upsertCalls  []upsertCall
	createCalls  int
	created      int
}

type upsertCall struct {
	chartID string
	period  models.Period
	entries int
}

func newOrchestratorStore() *orchestratorStore {
	return &orchestratorStore{
		schedules:  make(map[string]*models.SyncSchedule),
		charts:     make(map[string]*models.Chart),
		executions: make(map[string]*models.SyncExecution),
		existing:   make(map[string][]time.Time),
	}
}

func (m *orchestratorStore) UpdateExecution(ctx context.Context, exec *models.SyncExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.executions[exec.ID] = &cp
	return nil
}

func (m *orchestratorStore) ClaimExecution(ctx context.Context, exec *models.SyncExecution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.executions[exec.ID]
	if !ok || stored.Status != models.ExecutionPending {
		return false, nil
	}
	cp := *exec
	m.executions[exec.ID] = &cp
	return true, nil
}

func (m *orchestratorStore) UpdateSchedule(ctx context.Context, schedule *models.SyncSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *schedule
	m.schedules[schedule.ID] = &cp
	return nil
}

func (m *orchestratorStore) ListDueSchedules(ctx context.Context, now time.Time) ([]models.SyncSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.SyncSchedule
	for _, s := range m.schedules {
		if s.IsActive && (s.NextSyncAt == nil || !now.Before(*s.NextSyncAt)) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (m *orchestratorStore) GetSchedule(ctx context.Context, id string) (*models.SyncSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (m *orchestratorStore) GetChart(ctx context.Context, id string) (*models.Chart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *orchestratorStore) CreateExecutionIfIdle(ctx context.Context, exec *models.SyncExecution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	for _, e := range m.executions {
		if e.ScheduleID == exec.ScheduleID && !e.Status.IsTerminal() {
			return false, nil
		}
	}
	cp := *exec
	m.executions[exec.ID] = &cp
	m.created++
	return true, nil
}

func (m *orchestratorStore) ListRetryableExecutions(ctx context.Context, now time.Time) ([]models.SyncExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SyncExecution
	for _, e := range m.executions {
		if e.Status == models.ExecutionPending && e.NextAttemptAt != nil && !e.NextAttemptAt.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *orchestratorStore) ExistingPeriodStarts(ctx context.Context, chartID string, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[chartID], nil
}

func (m *orchestratorStore) UpsertRanking(ctx context.Context, chartID string, period models.Period, entries []models.FetchedEntry) (models.SyncCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls = append(m.upsertCalls, upsertCall{chartID: chartID, period: period, entries: len(entries)})
	return m.upsertCounts, nil
}

// stubFetcher implements RankingFetcher with per-period canned results.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []models.Period
	errFor  map[string]error // keyed by period start, RFC 3339
	errAll  error
	entries []models.FetchedEntry

	// Optional blocking gate for concurrency tests.
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *stubFetcher) FetchRankings(ctx context.Context, chart *models.Chart, period models.Period) ([]models.FetchedEntry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, period)
	f.mu.Unlock()

	if f.started != nil {
		f.once.Do(func() { close(f.started) })
		<-f.release
	}
	if f.errAll != nil {
		return nil, f.errAll
	}
	if err := f.errFor[period.Start.Format(time.RFC3339)]; err != nil {
		return nil, err
	}
	return f.entries, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// stubPublisher counts execution lifecycle events.
type stubPublisher struct {
	mu       sync.Mutex
	finished []models.ExecutionStatus
}

func (p *stubPublisher) PublishExecutionFinished(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, exec.Status)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finished)
}

func newTestOrchestrator(store *orchestratorStore, fetcher RankingFetcher, publisher EventPublisher, trackerBase time.Duration) *Orchestrator {
	logger := zerolog.Nop()
	tracker := NewTracker(store, &logger, TrackerConfig{BaseRetryDelay: trackerBase})
	scheduler := NewScheduler(store, &logger)
	return NewOrchestrator(store, fetcher, tracker, scheduler, publisher, &logger, DefaultOrchestratorConfig())
}

func seedWeekly(store *orchestratorStore, lastSync *time.Time) {
	chart := &models.Chart{
		ID:         "chart-1",
		Slug:       "spotify-us-top-50",
		Platform:   "spotify",
		Country:    "US",
		Frequency:  models.Weekly(),
		WeekAnchor: time.Monday,
		CreatedAt:  date(2024, 1, 1),
	}
	schedule := &models.SyncSchedule{
		ID:         "sched-1",
		ChartID:    chart.ID,
		IsActive:   true,
		Frequency:  models.Weekly(),
		WeekAnchor: time.Monday,
		LastSyncAt: lastSync,
	}
	store.charts[chart.ID] = chart
	store.schedules[schedule.ID] = schedule
}

// Four missing periods where the first and third fail transiently:
// the run completes with counts from the two successes and an error
// summary naming the two failures.
func TestOrchestrator_RunCycle_PartialSuccess(t *testing.T) {
	store := newOrchestratorStore()
	lastSync := date(2024, 1, 1)
	seedWeekly(store, &lastSync)
	store.upsertCounts = models.SyncCounts{RankingsCreated: 1, TracksCreated: 2}

	fetcher := &stubFetcher{
		errFor: map[string]error{
			date(2024, 1, 1).Format(time.RFC3339):  Transient("fetch rankings", errors.New("rate limited")),
			date(2024, 1, 15).Format(time.RFC3339): Transient("fetch rankings", errors.New("timeout")),
		},
		entries: []models.FetchedEntry{
			{Position: 1, TrackExternalID: "trk-1", Title: "Song A", Artist: "Artist A"},
			{Position: 2, TrackExternalID: "trk-2", Title: "Song B", Artist: "Artist B"},
		},
	}
	publisher := &stubPublisher{}
	orch := newTestOrchestrator(store, fetcher, publisher, time.Second)

	now := date(2024, 1, 29)
	orch.RunCycle(context.Background(), now)

	if store.created != 1 {
		t.Fatalf("executions created = %d, want 1", store.created)
	}

	var exec *models.SyncExecution
	for _, e := range store.executions {
		exec = e
	}
	if exec.Status != models.ExecutionCompleted {
		t.Errorf("execution status = %v, want %v", exec.Status, models.ExecutionCompleted)
	}
	wantCounts := models.SyncCounts{RankingsCreated: 2, TracksCreated: 4}
	if exec.Counts != wantCounts {
		t.Errorf("execution counts = %+v, want %+v", exec.Counts, wantCounts)
	}
	for _, failed := range []string{"2024-01-01", "2024-01-15"} {
		if !strings.Contains(exec.ErrorMessage, failed) {
			t.Errorf("error summary %q missing failed period %s", exec.ErrorMessage, failed)
		}
	}

	// Fetches happen oldest-first.
	if fetcher.callCount() != 4 {
		t.Fatalf("fetch calls = %d, want 4", fetcher.callCount())
	}
	for i := 1; i < len(fetcher.calls); i++ {
		if !fetcher.calls[i-1].Start.Before(fetcher.calls[i].Start) {
			t.Errorf("fetch order not ascending: %v before %v", fetcher.calls[i-1], fetcher.calls[i])
		}
	}

	schedule := store.schedules["sched-1"]
	if schedule.SuccessfulExecutions != 1 || schedule.TotalExecutions != 1 {
		t.Errorf("schedule counters = %d/%d, want 1 successful of 1 total",
			schedule.SuccessfulExecutions, schedule.TotalExecutions)
	}
	if schedule.LastSyncAt == nil || !schedule.LastSyncAt.Equal(now) {
		t.Errorf("LastSyncAt = %v, want %v", schedule.LastSyncAt, now)
	}
	if publisher.count() != 1 {
		t.Errorf("published events = %d, want 1", publisher.count())
	}
}

func TestOrchestrator_RunCycle_NoMissingPeriods(t *testing.T) {
	store := newOrchestratorStore()
	lastSync := date(2024, 1, 1)
	seedWeekly(store, &lastSync)
	store.existing["chart-1"] = []time.Time{date(2024, 1, 1), date(2024, 1, 8), date(2024, 1, 15)}

	fetcher := &stubFetcher{}
	publisher := &stubPublisher{}
	orch := newTestOrchestrator(store, fetcher, publisher, time.Second)

	orch.RunCycle(context.Background(), date(2024, 1, 22))

	if fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0 when nothing is missing", fetcher.callCount())
	}
	var exec *models.SyncExecution
	for _, e := range store.executions {
		exec = e
	}
	if exec == nil || exec.Status != models.ExecutionCompleted {
		t.Fatalf("execution = %+v, want Completed with zero counts", exec)
	}
	if exec.Counts != (models.SyncCounts{}) {
		t.Errorf("counts = %+v, want zero", exec.Counts)
	}
	if store.schedules["sched-1"].SuccessfulExecutions != 1 {
		t.Errorf("SuccessfulExecutions = %d, want 1", store.schedules["sched-1"].SuccessfulExecutions)
	}
}

// A live execution blocks new creation for the same schedule.
func TestOrchestrator_RunCycle_GuardSkipsLiveExecution(t *testing.T) {
	store := newOrchestratorStore()
	lastSync := date(2024, 1, 1)
	seedWeekly(store, &lastSync)
	store.executions["stuck"] = &models.SyncExecution{
		ID:         "stuck",
		ScheduleID: "sched-1",
		Status:     models.ExecutionRunning,
	}

	fetcher := &stubFetcher{}
	orch := newTestOrchestrator(store, fetcher, &stubPublisher{}, time.Second)

	orch.RunCycle(context.Background(), date(2024, 1, 22))

	if store.created != 0 {
		t.Errorf("executions created = %d, want 0 while one is live", store.created)
	}
	if store.createCalls != 1 {
		t.Errorf("create attempts = %d, want 1", store.createCalls)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.callCount())
	}
}

// Two concurrent cycles for the same due schedule produce exactly one
// execution; the guard resolves the race.
func TestOrchestrator_ConcurrentCycles_SingleExecution(t *testing.T) {
	store := newOrchestratorStore()
	lastSync := date(2024, 1, 1)
	seedWeekly(store, &lastSync)

	fetcher := &stubFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		entries: []models.FetchedEntry{{Position: 1, TrackExternalID: "trk-1", Title: "Song A", Artist: "Artist A"}},
	}
	orch := newTestOrchestrator(store, fetcher, &stubPublisher{}, time.Second)

	now := date(2024, 1, 22)
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.RunCycle(context.Background(), now)
	}()

	// Wait until the first cycle holds its execution mid-fetch, then
	// run a competing cycle.
	<-fetcher.started
	orch.RunCycle(context.Background(), now)
	close(fetcher.release)
	<-done

	if store.created != 1 {
		t.Errorf("executions created = %d, want exactly 1", store.created)
	}
	if store.createCalls != 2 {
		t.Errorf("create attempts = %d, want 2", store.createCalls)
	}
}

// A permanent provider error aborts the run on the spot: no further
// periods are fetched and no retry is consumed.
func TestOrchestrator_RunCycle_PermanentAborts(t *testing.T) {
	store := newOrchestratorStore()
	lastSync := date(2024, 1, 1)
	seedWeekly(store, &lastSync)

	fetcher := &stubFetcher{errAll: Permanent("fetch rankings", errors.New("unknown chart"))}
	publisher := &stubPublisher{}
	orch := newTestOrchestrator(store, fetcher, publisher, time.Second)

	orch.RunCycle(context.Background(), date(2024, 1, 22))

	if fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1 (abort on first permanent error)", fetcher.callCount())
	}
	var exec *models.SyncExecution
	for _, e := range store.executions {
		exec = e
	}
	if exec.Status != models.ExecutionFailed {
		t.Errorf("execution status = %v, want %v", exec.Status, models.ExecutionFailed)
	}
	if exec.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 for permanent failure", exec.RetryCount)
	}
	schedule := store.schedules["sched-1"]
	if schedule.FailedExecutions != 1 {
		t.Errorf("FailedExecutions = %d, want 1", schedule.FailedExecutions)
	}
	if schedule.NextSyncAt == nil {
		t.Error("NextSyncAt should still advance after permanent failure")
	}
	if publisher.count() != 1 {
		t.Errorf("published events = %d, want 1", publisher.count())
	}
}

// All-transient runs retry across cycles with backoff; the failure
// counter moves exactly once, on the terminal attempt.
func TestOrchestrator_RetryAcrossCycles_FailsOnceTerminally(t *testing.T) {
	store := newOrchestratorStore()
	seedWeekly(store, nil) // horizon falls back to chart creation

	fetcher := &stubFetcher{errAll: Transient("fetch rankings", errors.New("rate limited"))}
	publisher := &stubPublisher{}
	orch := newTestOrchestrator(store, fetcher, publisher, time.Millisecond)

	base := date(2024, 1, 22)
	// Pin the tracker clock so backoff timestamps land inside the
	// simulated cycle times below.
	orch.tracker.now = func() time.Time { return base }
	orch.RunCycle(context.Background(), base)

	var execID string
	for id := range store.executions {
		execID = id
	}
	if got := store.executions[execID].Status; got != models.ExecutionPending {
		t.Fatalf("status after first cycle = %v, want Pending (retry scheduled)", got)
	}
	if got := store.schedules["sched-1"].FailedExecutions; got != 0 {
		t.Fatalf("FailedExecutions after first cycle = %d, want 0", got)
	}
	if publisher.count() != 0 {
		t.Fatalf("published events after first cycle = %d, want 0", publisher.count())
	}

	// Each later cycle resumes the pending retry; the due-schedule pass
	// is blocked by the guard the whole time.
	orch.RunCycle(context.Background(), base.Add(time.Hour))
	orch.RunCycle(context.Background(), base.Add(2*time.Hour))

	exec := store.executions[execID]
	if exec.Status != models.ExecutionFailed {
		t.Errorf("final status = %v, want %v", exec.Status, models.ExecutionFailed)
	}
	if exec.RetryCount != models.DefaultMaxRetries {
		t.Errorf("RetryCount = %d, want %d", exec.RetryCount, models.DefaultMaxRetries)
	}
	if store.created != 1 {
		t.Errorf("executions created = %d, want 1 across all cycles", store.created)
	}

	schedule := store.schedules["sched-1"]
	if schedule.FailedExecutions != 1 {
		t.Errorf("FailedExecutions = %d, want exactly 1", schedule.FailedExecutions)
	}
	if schedule.TotalExecutions != 1 {
		t.Errorf("TotalExecutions = %d, want 1", schedule.TotalExecutions)
	}
	if publisher.count() != 1 {
		t.Errorf("published events = %d, want 1 (terminal only)", publisher.count())
	}
}

func TestOrchestrator_RunCycle_InvalidFrequencyFailsPermanently(t *testing.T) {
	store := newOrchestratorStore()
	chart := &models.Chart{ID: "chart-1", Frequency: models.CustomHours(0), CreatedAt: date(2024, 1, 1)}
	schedule := &models.SyncSchedule{
		ID:        "sched-1",
		ChartID:   chart.ID,
		IsActive:  true,
		Frequency: models.CustomHours(0),
	}
	store.charts[chart.ID] = chart
	store.schedules[schedule.ID] = schedule

	fetcher := &stubFetcher{}
	orch := newTestOrchestrator(store, fetcher, &stubPublisher{}, time.Second)

	orch.RunCycle(context.Background(), date(2024, 1, 22))

	if fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.callCount())
	}
	var exec *models.SyncExecution
	for _, e := range store.executions {
		exec = e
	}
	if exec == nil || exec.Status != models.ExecutionFailed {
		t.Fatalf("execution = %+v, want Failed", exec)
	}
	if exec.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 (configuration errors are not retried)", exec.RetryCount)
	}
	if store.schedules["sched-1"].FailedExecutions != 1 {
		t.Errorf("FailedExecutions = %d, want 1", store.schedules["sched-1"].FailedExecutions)
	}
	// Without a computable boundary the schedule must stop being due,
	// or every cycle would repeat this permanent failure.
	if store.schedules["sched-1"].IsActive {
		t.Error("schedule still active, want deactivated")
	}
}
