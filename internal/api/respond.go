// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/musicchartsai/chartsync/internal/logging"
)

// errorResponse is the error envelope returned on all failures.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON serializes payload to the response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The status line is already written; all we can do is log.
		logging.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError returns a JSON error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody parses the request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
