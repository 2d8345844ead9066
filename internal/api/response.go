// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package api exposes the HTTP surface: behavior ingestion, feed
// retrieval, profile and similarity introspection, and health probes.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/logging"
)

// APIResponse is the uniform response envelope.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries per-response observability fields.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a structured error payload.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Machine-readable error codes.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeUnavailable    = "UPSTREAM_UNAVAILABLE"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeInternal       = "INTERNAL_ERROR"
	CodePayloadTooBig  = "PAYLOAD_TOO_LARGE"
	CodeMalformedInput = "MALFORMED_INPUT"
)

func respondJSON(w http.ResponseWriter, status int, data any, started time.Time) {
	resp := &APIResponse{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(started).Milliseconds(),
		},
	}
	writeEnvelope(w, status, resp)
}

func respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	resp := &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	writeEnvelope(w, status, resp)
}

// respondForError maps service errors onto status codes and error
// codes: validation failures are the caller's fault, upstream outages
// are 503, everything else is a 500 with the detail kept out of the
// response body.
func respondForError(w http.ResponseWriter, err error) {
	var verr *behavior.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, CodeValidation, verr.Message, map[string]any{
			"field": verr.Field,
		})
	case errors.Is(err, behavior.ErrValidation):
		respondError(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, feed.ErrUpstreamUnavailable):
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "service temporarily unavailable", nil)
	default:
		logging.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, resp *APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Error().Err(err).Msg("marshal response failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("write response failed")
	}
}
