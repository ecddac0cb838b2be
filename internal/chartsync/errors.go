// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package chartsync

import (
	"errors"
	"fmt"

	"github.com/musicchartsai/chartsync/internal/models"
)

// InvalidFrequencyError reports a malformed sync frequency
// configuration, e.g. a non-positive custom hour interval. It is
// surfaced at schedule-creation time and never retried.
type InvalidFrequencyError struct {
	Kind  models.FrequencyKind
	Hours int
}

func (e *InvalidFrequencyError) Error() string {
	if e.Kind == models.FrequencyCustomHours {
		return fmt.Sprintf("invalid sync frequency: custom hours must be positive, got %d", e.Hours)
	}
	return fmt.Sprintf("invalid sync frequency: unknown kind %q", e.Kind)
}

// InvalidTransitionError reports a contract violation in the execution
// state machine: the caller requested a transition the current state
// does not admit. It indicates a bug in the orchestration call sequence
// and is always surfaced, never swallowed.
type InvalidTransitionError struct {
	ExecutionID string
	From        models.ExecutionStatus
	To          models.ExecutionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid execution transition %s -> %s (execution %s)", e.From, e.To, e.ExecutionID)
}

// TransientError wraps a retryable failure from the ranking provider
// (rate limit, timeout, server error). Transient period failures are
// skipped within a run; a fully failed run is retried across runs with
// exponential backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a non-retryable failure from the ranking
// provider (unknown chart, auth failure). A permanent error aborts the
// whole run immediately without consuming a retry.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error during %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for operation op.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Permanent wraps err as a PermanentError for operation op.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ValidateFrequency checks that f is a well-formed sync frequency.
func ValidateFrequency(f models.SyncFrequency) error {
	switch f.Kind {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
		return nil
	case models.FrequencyCustomHours:
		if f.Hours <= 0 {
			return &InvalidFrequencyError{Kind: f.Kind, Hours: f.Hours}
		}
		return nil
	default:
		return &InvalidFrequencyError{Kind: f.Kind, Hours: f.Hours}
	}
}
