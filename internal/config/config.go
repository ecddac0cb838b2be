// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package config

import (
	"time"
)

// Config holds all application configuration loaded from environment variables
// and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via CHARTSYNC_* variables
//
// Example - Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load config:", err)
//	}
//	// cfg.Soundcharts.APIKey, cfg.Database.Path, etc. are now populated
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Sync        SyncConfig        `koanf:"sync"`
	Soundcharts SoundchartsConfig `koanf:"soundcharts"`
	Events      EventsConfig      `koanf:"events"` // Optional: NATS JetStream event publishing
	API         APIConfig         `koanf:"api"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// DatabaseConfig holds DuckDB configuration.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"` // e.g. "2GB"; empty uses the DuckDB default
	Threads   int    `koanf:"threads" validate:"min=0"`
}

// SyncConfig controls the periodic sync runner and execution retry behavior.
type SyncConfig struct {
	// Enabled turns the background runner on. When false, syncs only
	// happen via the sync-now API.
	Enabled bool `koanf:"enabled"`
	// CheckInterval is how often the runner scans for due schedules and
	// retryable executions.
	CheckInterval time.Duration `koanf:"check_interval" validate:"min=1s"`
	// MaxConcurrentSyncs bounds how many schedules sync at once in a cycle.
	MaxConcurrentSyncs int `koanf:"max_concurrent_syncs" validate:"min=1"`
	// FetchTimeout bounds a single period fetch against the provider.
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"min=1s"`
	// MaxRetries is the retry budget per execution for transient failures.
	MaxRetries int `koanf:"max_retries" validate:"min=0"`
	// BaseRetryDelay seeds the exponential retry backoff.
	BaseRetryDelay time.Duration `koanf:"base_retry_delay" validate:"min=1s"`
}

// SoundchartsConfig holds chart data provider credentials and client tuning.
type SoundchartsConfig struct {
	URL       string        `koanf:"url" validate:"required,url"`
	AppID     string        `koanf:"app_id" validate:"required"`
	APIKey    string        `koanf:"api_key" validate:"required"`
	Timeout   time.Duration `koanf:"timeout" validate:"min=1s"`
	RateLimit float64       `koanf:"rate_limit" validate:"gt=0"` // requests per second
	RateBurst int           `koanf:"rate_burst" validate:"min=1"`
	// MaxRetries is the per-request HTTP retry budget, separate from the
	// execution-level retry budget in SyncConfig.
	MaxRetries int `koanf:"max_retries" validate:"min=0"`
}

// EventsConfig holds NATS JetStream publishing configuration.
// Execution lifecycle events are published when enabled; the orchestrator
// runs fine without it.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// SubjectPrefix namespaces published subjects, e.g.
	// "chartsync.execution.finished".
	SubjectPrefix string `koanf:"subject_prefix"`
}

// APIConfig holds HTTP API tuning.
type APIConfig struct {
	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit int `koanf:"rate_limit" validate:"min=0"`
	// MaxPageSize caps list endpoint page sizes.
	MaxPageSize int `koanf:"max_page_size" validate:"min=1"`
	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
