// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural problems (tag-driven via
// go-playground/validator) and cross-field constraints the tags cannot
// express. Returns a descriptive error naming the offending field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, ve := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fieldPath(ve.Namespace()), ve.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("invalid configuration: events.url is required when events are enabled")
	}
	if c.Soundcharts.RateBurst < int(c.Soundcharts.RateLimit) {
		return errors.New("invalid configuration: soundcharts.rate_burst must cover at least one second of soundcharts.rate_limit")
	}

	return nil
}

// fieldPath trims the leading "Config." from a validator namespace so error
// messages read Server.Port rather than Config.Server.Port.
func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Config.")
}
