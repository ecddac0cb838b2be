// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/metrics"
	"github.com/musicchartsai/chartsync/internal/models"
)

// Store is the storage collaborator the orchestrator runs against. The
// implementation must provide atomic check-then-create semantics for
// CreateExecutionIfIdle (a conditional insert or unique constraint) so
// two concurrent cycles can never create two live executions for the
// same schedule.
type Store interface {
	ExecutionStore
	ScheduleStore

	ListDueSchedules(ctx context.Context, now time.Time) ([]models.SyncSchedule, error)
	GetSchedule(ctx context.Context, id string) (*models.SyncSchedule, error)
	GetChart(ctx context.Context, id string) (*models.Chart, error)

	// CreateExecutionIfIdle persists exec in Pending only if no other
	// non-terminal execution exists for its schedule. Returns false
	// without error when one does.
	CreateExecutionIfIdle(ctx context.Context, exec *models.SyncExecution) (bool, error)

	// ListRetryableExecutions returns Pending executions whose
	// next_attempt_at has passed, i.e. failed runs due for another
	// attempt.
	ListRetryableExecutions(ctx context.Context, now time.Time) ([]models.SyncExecution, error)

	// ExistingPeriodStarts returns the period-start timestamps of
	// rankings already stored for the chart within [from, to].
	ExistingPeriodStarts(ctx context.Context, chartID string, from, to time.Time) ([]time.Time, error)

	// UpsertRanking stores one fetched ranking snapshot and its entries,
	// resolving tracks by external ID, and reports how many records were
	// created versus updated.
	UpsertRanking(ctx context.Context, chartID string, period models.Period, entries []models.FetchedEntry) (models.SyncCounts, error)
}

// RankingFetcher is the external ranking provider collaborator. Errors
// must be classified as transient (retryable) or permanent via the
// Transient/Permanent wrappers in this package.
type RankingFetcher interface {
	FetchRankings(ctx context.Context, chart *models.Chart, period models.Period) ([]models.FetchedEntry, error)
}

// EventPublisher receives execution lifecycle notifications after an
// execution terminalizes.
type EventPublisher interface {
	PublishExecutionFinished(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution) error
}

// OrchestratorConfig holds orchestration tuning knobs.
type OrchestratorConfig struct {
	// MaxConcurrentSyncs bounds how many schedules sync at once within a
	// cycle (default: 4).
	MaxConcurrentSyncs int

	// FetchTimeout bounds a single per-period provider call so one
	// stalled fetch cannot occupy a worker slot indefinitely
	// (default: 30s).
	FetchTimeout time.Duration

	// MaxRetries is assigned to newly created executions (default: 3).
	MaxRetries int
}

// DefaultOrchestratorConfig returns the default orchestrator configuration.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxConcurrentSyncs: 4,
		FetchTimeout:       30 * time.Second,
		MaxRetries:         models.DefaultMaxRetries,
	}
}

// Orchestrator runs sync cycles: it resumes retryable executions, pulls
// due schedules, guards execution creation, backfills missing periods
// oldest-first through the ranking provider, and drives tracker and
// scheduler state.
type Orchestrator struct {
	store     Store
	fetcher   RankingFetcher
	tracker   *Tracker
	scheduler *Scheduler
	publisher EventPublisher
	logger    zerolog.Logger
	config    OrchestratorConfig
}

// NewOrchestrator wires the sync core together.
func NewOrchestrator(
	store Store,
	fetcher RankingFetcher,
	tracker *Tracker,
	scheduler *Scheduler,
	publisher EventPublisher,
	logger *zerolog.Logger,
	config OrchestratorConfig,
) *Orchestrator {
	if config.MaxConcurrentSyncs <= 0 {
		config.MaxConcurrentSyncs = 4
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = models.DefaultMaxRetries
	}

	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		tracker:   tracker,
		scheduler: scheduler,
		publisher: publisher,
		logger:    logger.With().Str("component", "sync-orchestrator").Logger(),
		config:    config,
	}
}

// RunCycle executes one orchestration pass at now: retryable executions
// first (so backoff promises are honored), then newly due schedules.
// Schedules sync concurrently under a semaphore; per-schedule
// serialization is enforced solely by the store's check-then-create
// guard, which keeps the cycle reentrant-safe across processes.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) {
	now = now.UTC()
	cycleStart := time.Now()
	defer func() {
		metrics.SyncCycleDuration.Observe(time.Since(cycleStart).Seconds())
	}()

	o.resumeRetries(ctx, now)

	schedules, err := o.store.ListDueSchedules(ctx, now)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to list due schedules")
		metrics.SyncErrors.WithLabelValues("list_due").Inc()
		return
	}
	if len(schedules) == 0 {
		o.logger.Debug().Msg("No schedules due")
		return
	}

	o.logger.Info().Int("count", len(schedules)).Msg("Found due schedules")

	sem := make(chan struct{}, o.config.MaxConcurrentSyncs)
	var wg sync.WaitGroup
	for i := range schedules {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			o.syncSchedule(ctx, &schedules[idx], now)
		}(i)
	}
	wg.Wait()
}

// resumeRetries picks up Pending executions whose backoff delay has
// elapsed and runs another attempt. The execution already exists, so
// the creation guard is not involved.
func (o *Orchestrator) resumeRetries(ctx context.Context, now time.Time) {
	execs, err := o.store.ListRetryableExecutions(ctx, now)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to list retryable executions")
		metrics.SyncErrors.WithLabelValues("list_retryable").Inc()
		return
	}

	for i := range execs {
		exec := &execs[i]
		schedule, err := o.store.GetSchedule(ctx, exec.ScheduleID)
		if err != nil || schedule == nil {
			o.logger.Error().Err(err).
				Str("execution_id", exec.ID).
				Str("schedule_id", exec.ScheduleID).
				Msg("Failed to load schedule for retryable execution")
			continue
		}
		o.logger.Info().
			Str("execution_id", exec.ID).
			Str("schedule_id", schedule.ID).
			Int("retry_count", exec.RetryCount).
			Msg("Resuming execution retry")
		o.runExecution(ctx, schedule, exec, now)
	}
}

// syncSchedule creates a guarded execution for one due schedule and
// runs it. A schedule with a live (Pending or Running) execution is
// skipped this cycle.
func (o *Orchestrator) syncSchedule(ctx context.Context, schedule *models.SyncSchedule, now time.Time) {
	exec := &models.SyncExecution{
		ID:          uuid.New().String(),
		ScheduleID:  schedule.ID,
		Status:      models.ExecutionPending,
		MaxRetries:  o.config.MaxRetries,
		TriggeredBy: "schedule",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := o.store.CreateExecutionIfIdle(ctx, exec)
	if err != nil {
		o.logger.Error().Err(err).
			Str("schedule_id", schedule.ID).
			Msg("Failed to create execution")
		metrics.SyncErrors.WithLabelValues("create_execution").Inc()
		return
	}
	if !created {
		o.logger.Debug().
			Str("schedule_id", schedule.ID).
			Msg("Schedule already has a live execution, skipping this cycle")
		metrics.ExecutionsSkipped.Inc()
		return
	}

	o.runExecution(ctx, schedule, exec, now)
}

// periodFailure is one per-period fetch failure retained in the
// execution's structured error summary.
type periodFailure struct {
	Period string `json:"period"`
	Error  string `json:"error"`
}

// failureSummary is the JSON shape stored in error_message when a run
// had per-period failures.
type failureSummary struct {
	FailedPeriods []periodFailure `json:"failed_periods"`
}

// runExecution performs one attempt: mark running, detect gaps, fetch
// missing periods oldest-first, and terminalize. Permanent provider
// errors abort the attempt without consuming a retry; a run with zero
// successes but attempted periods takes the retry/backoff path; any
// other outcome completes, with partial failures retained in the error
// summary.
func (o *Orchestrator) runExecution(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution, now time.Time) {
	logger := o.logger.With().
		Str("schedule_id", schedule.ID).
		Str("execution_id", exec.ID).
		Logger()

	if err := o.tracker.MarkRunning(ctx, exec); err != nil {
		logger.Error().Err(err).Msg("Failed to mark execution running")
		metrics.SyncErrors.WithLabelValues("mark_running").Inc()
		return
	}

	chart, err := o.store.GetChart(ctx, schedule.ChartID)
	if err != nil || chart == nil {
		o.failAttempt(ctx, schedule, exec, now, "failed to load chart for schedule", err, logger)
		return
	}

	horizon := chart.CreatedAt
	if schedule.LastSyncAt != nil {
		horizon = *schedule.LastSyncAt
	}

	expected, err := ExpectedPeriods(schedule.Frequency, schedule.WeekAnchor, horizon, now)
	if err != nil {
		// Malformed frequency is a configuration error; retrying cannot
		// fix it.
		logger.Error().Err(err).Msg("Invalid frequency on schedule")
		o.terminalize(ctx, schedule, exec, now, func() error {
			return o.tracker.MarkFailedPermanent(ctx, exec, err.Error())
		}, logger)
		return
	}
	if len(expected) == 0 {
		o.terminalize(ctx, schedule, exec, now, func() error {
			return o.tracker.MarkCompleted(ctx, exec, models.SyncCounts{}, "")
		}, logger)
		return
	}

	existing, err := o.store.ExistingPeriodStarts(ctx, chart.ID, expected[0].Start, now)
	if err != nil {
		o.failAttempt(ctx, schedule, exec, now, "failed to query existing periods", err, logger)
		return
	}

	missing := MissingPeriods(expected, existing)
	metrics.PeriodsMissing.Add(float64(len(missing)))
	logger.Info().
		Int("expected", len(expected)).
		Int("missing", len(missing)).
		Str("frequency", schedule.Frequency.String()).
		Msg("Gap detection complete")

	var (
		counts    models.SyncCounts
		failures  []periodFailure
		succeeded int
		permanent error
	)

	for _, period := range missing {
		entries, err := o.fetchPeriod(ctx, chart, period)
		if err != nil {
			if IsPermanent(err) {
				permanent = err
				failures = append(failures, periodFailure{Period: period.String(), Error: err.Error()})
				metrics.PeriodsFetched.WithLabelValues("permanent_error").Inc()
				break
			}
			// Transient and unclassified failures alike: skip this
			// period, keep processing the rest.
			failures = append(failures, periodFailure{Period: period.String(), Error: err.Error()})
			metrics.PeriodsFetched.WithLabelValues("transient_error").Inc()
			logger.Warn().Err(err).Str("period", period.String()).Msg("Period fetch failed, continuing")
			continue
		}

		periodCounts, err := o.store.UpsertRanking(ctx, chart.ID, period, entries)
		if err != nil {
			failures = append(failures, periodFailure{Period: period.String(), Error: err.Error()})
			metrics.PeriodsFetched.WithLabelValues("store_error").Inc()
			logger.Error().Err(err).Str("period", period.String()).Msg("Failed to store ranking")
			continue
		}

		counts.Add(periodCounts)
		succeeded++
		metrics.PeriodsFetched.WithLabelValues("success").Inc()
		metrics.RankingsCreated.Add(float64(periodCounts.RankingsCreated))
		metrics.RankingsUpdated.Add(float64(periodCounts.RankingsUpdated))
	}

	summary := encodeFailureSummary(failures)

	switch {
	case permanent != nil:
		logger.Error().Err(permanent).Msg("Permanent provider error, aborting run")
		o.terminalize(ctx, schedule, exec, now, func() error {
			return o.tracker.MarkFailedPermanent(ctx, exec, summary)
		}, logger)

	case succeeded > 0 || len(missing) == 0:
		// Partial success still completes; the failures live on in the
		// structured summary for operators to inspect.
		o.terminalize(ctx, schedule, exec, now, func() error {
			return o.tracker.MarkCompleted(ctx, exec, counts, summary)
		}, logger)

	default:
		retrying, err := o.tracker.MarkFailed(ctx, exec, summary)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to mark execution failed")
			metrics.SyncErrors.WithLabelValues("mark_failed").Inc()
			return
		}
		if retrying {
			// Not terminal: the execution waits out its backoff and a
			// later cycle resumes it. The scheduler is not touched.
			metrics.ExecutionsTotal.WithLabelValues("retry_scheduled").Inc()
			return
		}
		o.finishTerminal(ctx, schedule, exec, now, logger)
	}
}

// fetchPeriod calls the provider with the configured per-call timeout.
func (o *Orchestrator) fetchPeriod(ctx context.Context, chart *models.Chart, period models.Period) ([]models.FetchedEntry, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.config.FetchTimeout)
	defer cancel()
	return o.fetcher.FetchRankings(fetchCtx, chart, period)
}

// failAttempt routes an infrastructure failure (storage, chart lookup)
// through the transient retry path.
func (o *Orchestrator) failAttempt(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution, now time.Time, msg string, cause error, logger zerolog.Logger) {
	logger.Error().Err(cause).Msg(msg)
	metrics.SyncErrors.WithLabelValues("storage").Inc()

	errMsg := msg
	if cause != nil {
		errMsg = msg + ": " + cause.Error()
	}
	retrying, err := o.tracker.MarkFailed(ctx, exec, errMsg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mark execution failed")
		return
	}
	if retrying {
		metrics.ExecutionsTotal.WithLabelValues("retry_scheduled").Inc()
		return
	}
	o.finishTerminal(ctx, schedule, exec, now, logger)
}

// terminalize applies a terminal transition and the post-terminal
// bookkeeping that must follow it exactly once.
func (o *Orchestrator) terminalize(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution, now time.Time, transition func() error, logger zerolog.Logger) {
	if err := transition(); err != nil {
		logger.Error().Err(err).Msg("Failed to terminalize execution")
		metrics.SyncErrors.WithLabelValues("terminalize").Inc()
		return
	}
	o.finishTerminal(ctx, schedule, exec, now, logger)
}

// finishTerminal advances the schedule and publishes the lifecycle
// event for an execution that just reached a terminal status.
func (o *Orchestrator) finishTerminal(ctx context.Context, schedule *models.SyncSchedule, exec *models.SyncExecution, now time.Time, logger zerolog.Logger) {
	metrics.ExecutionsTotal.WithLabelValues(string(exec.Status)).Inc()
	if exec.Status == models.ExecutionCompleted {
		metrics.SyncLastSuccess.SetToCurrentTime()
	}

	if err := o.scheduler.OnExecutionTerminal(ctx, schedule, exec, now); err != nil {
		logger.Error().Err(err).Msg("Failed to advance schedule after terminal execution")
		metrics.SyncErrors.WithLabelValues("schedule_advance").Inc()
	}

	if o.publisher != nil {
		if err := o.publisher.PublishExecutionFinished(ctx, schedule, exec); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish execution event")
		}
	}

	logger.Info().
		Str("status", string(exec.Status)).
		Int("rankings_created", exec.Counts.RankingsCreated).
		Int("rankings_updated", exec.Counts.RankingsUpdated).
		Msg("Execution finished")
}

// encodeFailureSummary renders per-period failures as the structured
// JSON stored on the execution record. Empty input yields "".
func encodeFailureSummary(failures []periodFailure) string {
	if len(failures) == 0 {
		return ""
	}
	data, err := json.Marshal(failureSummary{FailedPeriods: failures})
	if err != nil {
		// Marshal of plain strings cannot realistically fail; fall back
		// to a flat message.
		return "failed periods: " + failures[0].Period
	}
	return string(data)
}
