// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

// Package soundcharts implements the ranking provider client against
// the Soundcharts customer API.
//
// Resilience mechanisms:
//   - Rate limiting: token bucket pacing ahead of every request
//   - Retries: exponential backoff on HTTP 429 and 5xx, honoring Retry-After
//   - Circuit breaker: see BreakerClient
//
// Errors are classified for the orchestrator: auth and not-found
// failures are permanent, everything else (timeouts, rate limiting
// exhaustion, server errors) is transient.
package soundcharts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/musicchartsai/chartsync/internal/chartsync"
	"github.com/musicchartsai/chartsync/internal/config"
	"github.com/musicchartsai/chartsync/internal/metrics"
	"github.com/musicchartsai/chartsync/internal/models"
)

// rankingEndpoint names the provider endpoint for metrics labels.
const rankingEndpoint = "chart_ranking"

// Client talks to the Soundcharts chart ranking API.
//
// Thread Safety: Safe for concurrent use. Each request creates its own
// HTTP request; the rate limiter serializes pacing internally.
type Client struct {
	baseURL        string
	appID          string
	apiKey         string
	client         *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Soundcharts API client from configuration.
func NewClient(cfg *config.SoundchartsConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		appID:   cfg.AppID,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: time.Second, // doubles each retry: 1s, 2s, 4s, ...
	}
}

// FetchRankings retrieves the ranking snapshot for one chart period,
// normalized and sorted by position. Implements chartsync.RankingFetcher.
func (c *Client) FetchRankings(ctx context.Context, chart *models.Chart, period models.Period) ([]models.FetchedEntry, error) {
	reqURL := fmt.Sprintf("%s/api/v2.14/chart/song/%s/ranking/%s",
		c.baseURL, chart.Slug, period.Start.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	metrics.ProviderRequestDuration.WithLabelValues(rankingEndpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderRequestErrors.WithLabelValues(rankingEndpoint, "transport").Inc()
		return nil, chartsync.Transient("fetch rankings", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp)
	}

	var payload rankingResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.ProviderRequestErrors.WithLabelValues(rankingEndpoint, "decode").Inc()
		return nil, chartsync.Transient("decode rankings response", err)
	}

	entries := make([]models.FetchedEntry, 0, len(payload.Items))
	for _, item := range payload.Items {
		entries = append(entries, models.FetchedEntry{
			Position:        item.Position,
			Streams:         item.Streams,
			TrackExternalID: item.Song.UUID,
			Title:           item.Song.Name,
			Artist:          item.Song.CreditName,
			ISRC:            item.Song.ISRC,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })

	return entries, nil
}

// Ping verifies API reachability and credentials.
func (c *Client) Ping(ctx context.Context) error {
	reqURL := c.baseURL + "/api/v2/platform/spotify"
	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return fmt.Errorf("soundcharts ping failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("soundcharts ping failed with status %d", resp.StatusCode)
	}
	return nil
}

// doRequestWithRateLimit paces the request through the token bucket and
// retries HTTP 429 and 5xx responses with exponential backoff, honoring
// Retry-After (RFC 6585). The context cancels both waits.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("x-app-id", c.appID)
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport errors (timeouts, resets) retry like 5xx.
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if attempt == c.maxRetries {
				break
			}
			if err := c.waitBackoff(ctx, attempt, ""); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("request failed with status %d after %d retries", resp.StatusCode, c.maxRetries)
			break
		}

		metrics.ProviderRetries.Inc()
		if err := c.waitBackoff(ctx, attempt, retryAfter); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// waitBackoff sleeps out the exponential backoff for attempt, preferring
// the server's Retry-After hint when present.
func (c *Client) waitBackoff(ctx context.Context, attempt int, retryAfter string) error {
	delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
	if retryAfter != "" {
		if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
			delay = seconds
		}
	}

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyStatus maps a non-200 response to a transient or permanent
// error. Auth failures and unknown charts cannot be fixed by retrying.
func (c *Client) classifyStatus(resp *http.Response) error {
	msg := readErrorMessage(resp.Body)
	err := fmt.Errorf("status %d: %s", resp.StatusCode, msg)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		metrics.ProviderRequestErrors.WithLabelValues(rankingEndpoint, "permanent").Inc()
		return chartsync.Permanent("fetch rankings", err)
	default:
		metrics.ProviderRequestErrors.WithLabelValues(rankingEndpoint, "transient").Inc()
		return chartsync.Transient("fetch rankings", err)
	}
}

// readErrorMessage extracts the provider's error message, falling back
// to the raw body, capped to keep log lines bounded.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var envelope apiError
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Errors) > 0 {
		return envelope.Errors[0].Message
	}
	return string(raw)
}
