// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order for a config file when
// CHARTSYNC_CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chartsync/config.yaml",
	"/etc/chartsync/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CHARTSYNC_CONFIG_PATH"

// EnvPrefix namespaces all environment variable overrides.
const EnvPrefix = "CHARTSYNC_"

// defaultConfig returns the built-in defaults. Every optional setting has a
// sensible default; required settings (provider credentials) default empty
// and fail validation if never set.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/chartsync.db",
			MaxMemory: "",
			Threads:   0, // 0 = DuckDB default
		},
		Sync: SyncConfig{
			Enabled:            true,
			CheckInterval:      5 * time.Minute,
			MaxConcurrentSyncs: 4,
			FetchTimeout:       30 * time.Second,
			MaxRetries:         3,
			BaseRetryDelay:     time.Minute,
		},
		Soundcharts: SoundchartsConfig{
			URL:        "https://customer.api.soundcharts.com",
			AppID:      "",
			APIKey:     "",
			Timeout:    30 * time.Second,
			RateLimit:  5,
			RateBurst:  5,
			MaxRetries: 3,
		},
		Events: EventsConfig{
			Enabled:       false, // Opt-in only
			URL:           "nats://localhost:4222",
			SubjectPrefix: "chartsync",
		},
		API: APIConfig{
			RateLimit:   120,
			MaxPageSize: 200,
			CORSOrigins: nil,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults. Environment variable names map to
// koanf paths by stripping the CHARTSYNC_ prefix and matching the leading
// section name:
//
//	CHARTSYNC_SERVER_PORT          -> server.port
//	CHARTSYNC_SOUNDCHARTS_API_KEY  -> soundcharts.api_key
//	CHARTSYNC_SYNC_CHECK_INTERVAL  -> sync.check_interval
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	envProvider := env.Provider(EnvPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// configSections are the top-level koanf keys. The env transform splits the
// section off the front of the variable name so field names may themselves
// contain underscores (api_key, check_interval).
var configSections = []string{
	"soundcharts",
	"database",
	"logging",
	"server",
	"events",
	"sync",
	"api",
}

// envTransformFunc maps CHARTSYNC_SECTION_FIELD_NAME to section.field_name.
// Variables that do not match a known section are dropped.
func envTransformFunc(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if s == "config_path" {
		return "" // handled by findConfigFile, not a config key
	}
	for _, section := range configSections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return ""
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices; YAML values arrive as slices already and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
