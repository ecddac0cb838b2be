// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package soundcharts

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/musicchartsai/chartsync/internal/chartsync"
	"github.com/musicchartsai/chartsync/internal/logging"
	"github.com/musicchartsai/chartsync/internal/metrics"
	"github.com/musicchartsai/chartsync/internal/models"
)

const breakerName = "soundcharts-api"

// BreakerClient wraps Client with a circuit breaker so a degraded
// provider cannot soak every sync worker in timeouts. A rejected call
// surfaces as a transient error, which the orchestrator already knows
// how to retry.
//
// The breaker uses real time for its interval and timeout windows;
// unit tests exercise the wrapped client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[[]models.FetchedEntry]
}

// NewBreakerClient creates a circuit-breaker-protected provider client.
// The circuit opens at a 60% failure rate over at least 10 requests,
// and probes again after 2 minutes.
func NewBreakerClient(client *Client) *BreakerClient {
	metrics.SetCircuitBreakerState(breakerName, 0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[[]models.FetchedEntry](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,               // Allow 3 probe requests in half-open state
		Interval:    time.Minute,     // Reset counts after 1 minute in closed state
		Timeout:     2 * time.Minute, // Open -> half-open after 2 minutes

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.SetCircuitBreakerState(name, breakerStateValue(to))
		},

		// Permanent provider answers (404, auth) are real responses, not
		// signs of an unhealthy provider; only transient failures count
		// toward tripping.
		IsSuccessful: func(err error) bool {
			return err == nil || chartsync.IsPermanent(err)
		},
	})

	return &BreakerClient{client: client, cb: cb}
}

// FetchRankings proxies to the wrapped client under breaker protection.
// Implements chartsync.RankingFetcher.
func (b *BreakerClient) FetchRankings(ctx context.Context, chart *models.Chart, period models.Period) ([]models.FetchedEntry, error) {
	entries, err := b.cb.Execute(func() ([]models.FetchedEntry, error) {
		return b.client.FetchRankings(ctx, chart, period)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, chartsync.Transient("fetch rankings", err)
		}
		return nil, err
	}
	return entries, nil
}

// breakerStateValue maps breaker states to gauge values: 0 closed,
// 1 half-open, 2 open.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
