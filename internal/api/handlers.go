// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/musicchartsai/chartsync/internal/chartsync"
	"github.com/musicchartsai/chartsync/internal/config"
	"github.com/musicchartsai/chartsync/internal/models"
)

// Store is the storage surface the HTTP handlers need.
type Store interface {
	ListCharts(ctx context.Context) ([]models.Chart, error)
	CreateChart(ctx context.Context, chart *models.Chart) error
	GetChart(ctx context.Context, id string) (*models.Chart, error)
	GetChartBySlug(ctx context.Context, slug string) (*models.Chart, error)
	ListRankings(ctx context.Context, chartID string, limit int) ([]models.ChartRanking, error)
	GetTrends(ctx context.Context, chartID string, limit int) ([]models.TrendEntry, error)

	ListSchedules(ctx context.Context) ([]models.SyncSchedule, error)
	GetSchedule(ctx context.Context, id string) (*models.SyncSchedule, error)
	GetScheduleByChart(ctx context.Context, chartID string) (*models.SyncSchedule, error)
	CreateSchedule(ctx context.Context, schedule *models.SyncSchedule) error
	ListExecutions(ctx context.Context, scheduleID string, limit int) ([]models.SyncExecution, error)

	Ping(ctx context.Context) error
}

// Handler implements the HTTP endpoints.
type Handler struct {
	store     Store
	scheduler *chartsync.Scheduler
	logger    zerolog.Logger
	config    *config.APIConfig
}

// NewHandler creates the API handler.
func NewHandler(store Store, scheduler *chartsync.Scheduler, logger *zerolog.Logger, cfg *config.APIConfig) *Handler {
	return &Handler{
		store:     store,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "api").Logger(),
		config:    cfg,
	}
}

// HealthLive reports process liveness.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Process is alive"
// @Router /healthz [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness: the database must answer.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Database reachable"
// @Failure 503 {object} errorResponse "Database not ready"
// @Router /readyz [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListCharts returns all charts.
//
// @Summary List charts
// @Tags Charts
// @Produce json
// @Success 200 {object} map[string]interface{} "Charts with count"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /api/v1/charts [get]
func (h *Handler) ListCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := h.store.ListCharts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list charts")
		writeError(w, http.StatusInternalServerError, "failed to list charts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": charts, "count": len(charts)})
}

// createChartRequest is the POST /charts payload.
type createChartRequest struct {
	Slug       string               `json:"slug"`
	Platform   string               `json:"platform"`
	Country    string               `json:"country"`
	Name       string               `json:"name"`
	Frequency  models.SyncFrequency `json:"frequency"`
	WeekAnchor int                  `json:"week_anchor"`
}

// CreateChart registers a new chart.
//
// @Summary Create a chart
// @Description Registers a platform chart with its publication frequency and week anchor
// @Tags Charts
// @Accept json
// @Produce json
// @Param chart body createChartRequest true "Chart definition"
// @Success 201 {object} models.Chart "Chart created"
// @Failure 400 {object} errorResponse "Validation error"
// @Failure 409 {object} errorResponse "Slug already exists"
// @Router /api/v1/charts [post]
func (h *Handler) CreateChart(w http.ResponseWriter, r *http.Request) {
	var req createChartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Slug == "" || req.Platform == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "slug, platform, and name are required")
		return
	}
	if err := chartsync.ValidateFrequency(req.Frequency); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WeekAnchor < 0 || req.WeekAnchor > 6 {
		writeError(w, http.StatusBadRequest, "week_anchor must be 0 (Sunday) through 6 (Saturday)")
		return
	}

	existing, err := h.store.GetChartBySlug(r.Context(), req.Slug)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to check chart slug")
		writeError(w, http.StatusInternalServerError, "failed to create chart")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "chart slug already exists")
		return
	}

	chart := &models.Chart{
		Slug:       req.Slug,
		Platform:   req.Platform,
		Country:    req.Country,
		Name:       req.Name,
		Frequency:  req.Frequency,
		WeekAnchor: time.Weekday(req.WeekAnchor),
	}
	if err := h.store.CreateChart(r.Context(), chart); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create chart")
		writeError(w, http.StatusInternalServerError, "failed to create chart")
		return
	}
	writeJSON(w, http.StatusCreated, chart)
}

// GetChart returns one chart by ID.
//
// @Summary Get a chart
// @Tags Charts
// @Produce json
// @Param id path string true "Chart ID"
// @Success 200 {object} models.Chart "Chart"
// @Failure 404 {object} errorResponse "Chart not found"
// @Router /api/v1/charts/{id} [get]
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.store.GetChart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get chart")
		writeError(w, http.StatusInternalServerError, "failed to get chart")
		return
	}
	if chart == nil {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// ListRankings returns stored ranking snapshots for a chart.
//
// @Summary List ranking snapshots
// @Tags Charts
// @Produce json
// @Param id path string true "Chart ID"
// @Param limit query int false "Maximum snapshots to return" default(50)
// @Success 200 {object} map[string]interface{} "Rankings with count"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /api/v1/charts/{id}/rankings [get]
func (h *Handler) ListRankings(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "id")
	rankings, err := h.store.ListRankings(r.Context(), chartID, h.limitParam(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list rankings")
		writeError(w, http.StatusInternalServerError, "failed to list rankings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rankings": rankings, "count": len(rankings)})
}

// GetTrends returns the latest ranking with position deltas.
//
// @Summary Get chart trends
// @Description Latest ranking joined with track metadata and position deltas against the preceding period
// @Tags Charts
// @Produce json
// @Param id path string true "Chart ID"
// @Param limit query int false "Maximum entries to return" default(50)
// @Success 200 {object} map[string]interface{} "Trend entries with count"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /api/v1/charts/{id}/trends [get]
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	chartID := chi.URLParam(r, "id")
	trends, err := h.store.GetTrends(r.Context(), chartID, h.limitParam(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get trends")
		writeError(w, http.StatusInternalServerError, "failed to get trends")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trends": trends, "count": len(trends)})
}

// ListSchedules returns all sync schedules.
//
// @Summary List sync schedules
// @Tags Schedules
// @Produce json
// @Success 200 {object} map[string]interface{} "Schedules with count"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /api/v1/schedules [get]
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.store.ListSchedules(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list schedules")
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules, "count": len(schedules)})
}

// createScheduleRequest is the POST /schedules payload. The schedule
// inherits the chart's frequency and week anchor.
type createScheduleRequest struct {
	ChartID         string `json:"chart_id"`
	AlignToBoundary bool   `json:"align_to_boundary"`
}

// CreateSchedule enrolls a chart for syncing. One schedule exists per
// chart; enrolling twice is a conflict.
//
// @Summary Create a sync schedule
// @Description Enrolls a chart for periodic syncing, inheriting its frequency and week anchor
// @Tags Schedules
// @Accept json
// @Produce json
// @Param schedule body createScheduleRequest true "Schedule definition"
// @Success 201 {object} models.SyncSchedule "Schedule created"
// @Failure 404 {object} errorResponse "Chart not found"
// @Failure 409 {object} errorResponse "Chart already has a schedule"
// @Router /api/v1/schedules [post]
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	chart, err := h.store.GetChart(r.Context(), req.ChartID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load chart")
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}
	if chart == nil {
		writeError(w, http.StatusNotFound, "chart not found")
		return
	}

	existing, err := h.store.GetScheduleByChart(r.Context(), chart.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to check existing schedule")
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "chart already has a schedule")
		return
	}

	schedule := &models.SyncSchedule{
		ChartID:    chart.ID,
		IsActive:   true,
		Frequency:  chart.Frequency,
		WeekAnchor: chart.WeekAnchor,
	}
	now := time.Now().UTC()
	if req.AlignToBoundary {
		next, err := chartsync.NextBoundary(schedule.Frequency, schedule.WeekAnchor, now)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		schedule.NextSyncAt = &next
	} else {
		schedule.NextSyncAt = &now
	}

	if err := h.store.CreateSchedule(r.Context(), schedule); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create schedule")
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

// GetSchedule returns one schedule by ID.
//
// @Summary Get a sync schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} models.SyncSchedule "Schedule"
// @Failure 404 {object} errorResponse "Schedule not found"
// @Router /api/v1/schedules/{id} [get]
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// ActivateSchedule re-enables a deactivated schedule. The optional
// align_to_boundary query parameter waits for the next natural boundary
// instead of syncing immediately.
//
// @Summary Activate a sync schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param align_to_boundary query bool false "Wait for the next period boundary instead of syncing immediately"
// @Success 200 {object} models.SyncSchedule "Schedule activated"
// @Failure 404 {object} errorResponse "Schedule not found"
// @Router /api/v1/schedules/{id}/activate [post]
func (h *Handler) ActivateSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	align := r.URL.Query().Get("align_to_boundary") == "true"
	if err := h.scheduler.Activate(r.Context(), schedule, time.Now().UTC(), align); err != nil {
		h.logger.Error().Err(err).Msg("Failed to activate schedule")
		writeError(w, http.StatusInternalServerError, "failed to activate schedule")
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// DeactivateSchedule pauses a schedule without deleting its history.
//
// @Summary Deactivate a sync schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} models.SyncSchedule "Schedule deactivated"
// @Failure 404 {object} errorResponse "Schedule not found"
// @Router /api/v1/schedules/{id}/deactivate [post]
func (h *Handler) DeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.Deactivate(r.Context(), schedule, time.Now().UTC()); err != nil {
		h.logger.Error().Err(err).Msg("Failed to deactivate schedule")
		writeError(w, http.StatusInternalServerError, "failed to deactivate schedule")
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// SyncNow marks a schedule due immediately; the next runner cycle picks
// it up.
//
// @Summary Trigger an immediate sync
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 202 {object} models.SyncSchedule "Schedule marked due"
// @Failure 404 {object} errorResponse "Schedule not found"
// @Failure 409 {object} errorResponse "Schedule is inactive"
// @Router /api/v1/schedules/{id}/sync-now [post]
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.SyncNow(r.Context(), schedule, time.Now().UTC()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, schedule)
}

// ListExecutions returns a schedule's execution history, newest first.
//
// @Summary List sync executions
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param limit query int false "Maximum executions to return" default(50)
// @Success 200 {object} map[string]interface{} "Executions with count"
// @Failure 404 {object} errorResponse "Schedule not found"
// @Router /api/v1/schedules/{id}/executions [get]
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	schedule, ok := h.loadSchedule(w, r)
	if !ok {
		return
	}

	execs, err := h.store.ListExecutions(r.Context(), schedule.ID, h.limitParam(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list executions")
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

// loadSchedule resolves the {id} path parameter, writing the error
// response itself when the schedule cannot be served.
func (h *Handler) loadSchedule(w http.ResponseWriter, r *http.Request) (*models.SyncSchedule, bool) {
	schedule, err := h.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get schedule")
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return nil, false
	}
	if schedule == nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return nil, false
	}
	return schedule, true
}

// limitParam parses ?limit=N, clamped to the configured page size cap.
func (h *Handler) limitParam(r *http.Request) int {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if h.config.MaxPageSize > 0 && limit > h.config.MaxPageSize {
		limit = h.config.MaxPageSize
	}
	return limit
}
