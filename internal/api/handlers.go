// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/feed/generators"
	"github.com/mfaulds/feedrank/internal/metrics"
	"github.com/mfaulds/feedrank/internal/profile"
	"github.com/mfaulds/feedrank/internal/similarity"
	"github.com/mfaulds/feedrank/internal/validation"
)

// maxBehaviorBody caps the ingest request body.
const maxBehaviorBody = 64 * 1024

// EventPublisher accepts validated behavior events into the pipeline.
type EventPublisher interface {
	Publish(event *behavior.Event) error
}

// FeedComposer builds ranked feeds.
type FeedComposer interface {
	Compose(ctx context.Context, userID string, contentType behavior.ContentType, limit int) ([]feed.Recommendation, error)
}

// TrendingSource serves the public trending endpoint.
type TrendingSource interface {
	GenerateWindow(ctx context.Context, contentType behavior.ContentType, window generators.Window, limit int) ([]feed.Recommendation, error)
}

// ProfileProvider resolves a user's interest profile.
type ProfileProvider interface {
	Profile(ctx context.Context, userID string) (*profile.InterestProfile, error)
}

// NeighborProvider resolves similar users.
type NeighborProvider interface {
	NearestUsers(ctx context.Context, userID string, k int) ([]similarity.Neighbor, error)
}

// Pinger reports backing store health for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds handler tunables.
type HandlerConfig struct {
	// DefaultNeighbors is the similar-users count when k is omitted.
	DefaultNeighbors int

	// MaxLimit caps caller-requested list sizes.
	MaxLimit int

	// IngestRate and IngestBurst shape the ingest token bucket.
	IngestRate  float64
	IngestBurst int
}

// DefaultHandlerConfig returns production defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		DefaultNeighbors: 20,
		MaxLimit:         100,
		IngestRate:       500,
		IngestBurst:      1000,
	}
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	publisher EventPublisher
	composer  FeedComposer
	trending  TrendingSource
	profiles  ProfileProvider
	neighbors NeighborProvider
	store     Pinger

	cfg     HandlerConfig
	limiter *rate.Limiter
}

// NewHandlers wires the handler set.
func NewHandlers(
	publisher EventPublisher,
	composer FeedComposer,
	trending TrendingSource,
	profiles ProfileProvider,
	neighbors NeighborProvider,
	store Pinger,
	cfg HandlerConfig,
) *Handlers {
	defaults := DefaultHandlerConfig()
	if cfg.DefaultNeighbors <= 0 {
		cfg.DefaultNeighbors = defaults.DefaultNeighbors
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.IngestRate <= 0 {
		cfg.IngestRate = defaults.IngestRate
	}
	if cfg.IngestBurst <= 0 {
		cfg.IngestBurst = defaults.IngestBurst
	}

	return &Handlers{
		publisher: publisher,
		composer:  composer,
		trending:  trending,
		profiles:  profiles,
		neighbors: neighbors,
		store:     store,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.IngestRate), cfg.IngestBurst),
	}
}

// behaviorRequest is the ingest request body. Tags cover shape and
// size; enum and cross-field checks stay with behavior.Event.Validate.
type behaviorRequest struct {
	UserID      string            `json:"user_id" validate:"required,max=128"`
	Type        string            `json:"behavior_type" validate:"required,max=32"`
	ContentID   string            `json:"content_id" validate:"required,max=256"`
	ContentType string            `json:"content_type" validate:"omitempty,max=32"`
	Timestamp   time.Time         `json:"timestamp,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" validate:"omitempty,max=32"`
}

// PostBehavior accepts one behavior event. The event is validated
// synchronously and persisted asynchronously, so success is 202, not
// 201.
func (h *Handlers) PostBehavior(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	if !h.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, CodeRateLimited, "ingest rate exceeded, retry later", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBehaviorBody)
	var req behaviorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.EventsRejected.Inc()
		respondError(w, http.StatusBadRequest, CodeMalformedInput, "request body is not valid JSON", nil)
		return
	}
	if err := validation.Struct(&req); err != nil {
		metrics.EventsRejected.Inc()
		respondForError(w, err)
		return
	}

	event := behavior.NewEvent(req.UserID, behavior.Type(req.Type), req.ContentID, behavior.ContentType(req.ContentType))
	if !req.Timestamp.IsZero() {
		event.Timestamp = req.Timestamp.UTC()
	}
	event.Metadata = req.Metadata

	if err := h.publisher.Publish(event); err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"event_id": event.EventID}, started)
}

// GetUserFeed serves the personalized feed.
func (h *Handlers) GetUserFeed(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, CodeValidation, "user id is required", nil)
		return
	}

	contentType, ok := h.contentTypeParam(w, r)
	if !ok {
		return
	}
	limit := h.limitParam(r, 0)

	recs, err := h.composer.Compose(r.Context(), userID, contentType, limit)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"recommendations": recs,
		"count":           len(recs),
	}, started)
}

// GetTrending serves globally trending content. It needs no user and
// works identically for anonymous callers.
func (h *Handlers) GetTrending(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	window := generators.Window(r.URL.Query().Get("window"))
	switch window {
	case "", generators.WindowDay, generators.WindowWeek, generators.WindowMonth:
	default:
		respondError(w, http.StatusBadRequest, CodeValidation, "window must be day, week or month", nil)
		return
	}
	if window == "" {
		window = generators.WindowWeek
	}

	contentType, ok := h.contentTypeParam(w, r)
	if !ok {
		return
	}
	limit := h.limitParam(r, 20)

	recs, err := h.trending.GenerateWindow(r.Context(), contentType, window, limit)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"window":          string(window),
		"recommendations": recs,
		"count":           len(recs),
	}, started)
}

// GetProfile exposes a user's interest profile with weights normalized
// for display.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, CodeValidation, "user id is required", nil)
		return
	}

	p, err := h.profiles.Profile(r.Context(), userID)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       p.UserID,
		"topics":        p.DisplayNormalize(),
		"top_topics":    p.TopTopics(10),
		"content_types": p.ContentTypes,
		"behaviors":     p.Behaviors,
		"event_count":   p.EventCount,
		"built_at":      p.BuiltAt,
		"cold_start":    p.Empty(),
	}, started)
}

// GetSimilarUsers exposes the similarity index for a user.
func (h *Handlers) GetSimilarUsers(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		respondError(w, http.StatusBadRequest, CodeValidation, "user id is required", nil)
		return
	}

	k := h.cfg.DefaultNeighbors
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, CodeValidation, "k must be a positive integer", nil)
			return
		}
		k = parsed
	}
	if k > h.cfg.MaxLimit {
		k = h.cfg.MaxLimit
	}

	neighbors, err := h.neighbors.NearestUsers(r.Context(), userID, k)
	if err != nil {
		respondForError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"neighbors": neighbors,
		"count":     len(neighbors),
	}, started)
}

// HealthLive answers liveness probes.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"}, time.Now())
}

// HealthReady answers readiness probes by pinging the behavior store.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "behavior store unreachable", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"}, time.Now())
}

// contentTypeParam parses and validates the content_type query param,
// defaulting to posts.
func (h *Handlers) contentTypeParam(w http.ResponseWriter, r *http.Request) (behavior.ContentType, bool) {
	raw := r.URL.Query().Get("content_type")
	if raw == "" {
		return behavior.ContentPost, true
	}
	ct := behavior.ContentType(raw)
	if !ct.Valid() {
		respondError(w, http.StatusBadRequest, CodeValidation, "unknown content type", map[string]any{
			"content_type": raw,
		})
		return "", false
	}
	return ct, true
}

// limitParam parses the limit query param, clamping to MaxLimit.
// Invalid values fall back to the provided default.
func (h *Handlers) limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > h.cfg.MaxLimit {
		return h.cfg.MaxLimit
	}
	return limit
}
