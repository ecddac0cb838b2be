// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package soundcharts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/musicchartsai/chartsync/internal/chartsync"
)

func TestBreakerStateValue(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  float64
	}{
		{gobreaker.StateClosed, 0},
		{gobreaker.StateHalfOpen, 1},
		{gobreaker.StateOpen, 2},
	}
	for _, tt := range tests {
		if got := breakerStateValue(tt.state); got != tt.want {
			t.Errorf("breakerStateValue(%v) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestBreakerClient_OpensOnSustainedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := NewBreakerClient(newTestClient(t, server.URL, 0))
	ctx := context.Background()

	// Ten transient failures push the failure ratio past the trip point.
	for i := 0; i < 10; i++ {
		if _, err := breaker.FetchRankings(ctx, testChart(), testPeriod()); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}

	before := calls.Load()
	_, err := breaker.FetchRankings(ctx, testChart(), testPeriod())
	if err == nil {
		t.Fatal("call with open circuit should fail")
	}
	if !chartsync.IsTransient(err) {
		t.Errorf("rejected call error %v should be transient", err)
	}
	if calls.Load() != before {
		t.Error("open circuit should reject without reaching the provider")
	}
}

func TestBreakerClient_PermanentErrorsDoNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	breaker := NewBreakerClient(newTestClient(t, server.URL, 0))
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := breaker.FetchRankings(ctx, testChart(), testPeriod())
		if !chartsync.IsPermanent(err) {
			t.Fatalf("call %d error = %v, want permanent passthrough (circuit must stay closed)", i+1, err)
		}
	}
}
