// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package profile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// EventSource provides the behavior log reads the builder needs.
// Implemented by the database package; defined here so the builder can
// be tested with in-memory fakes.
type EventSource interface {
	// EventsForUser returns the user's events since the given time in
	// timestamp order.
	EventsForUser(ctx context.Context, userID string, since time.Time, limit int) ([]behavior.Event, error)

	// ContentItems returns catalog entries for the given content IDs.
	ContentItems(ctx context.Context, ids []string) ([]feed.ContentItem, error)
}

// Config holds builder settings.
type Config struct {
	// HalfLife is the decay half-life: an event this old contributes
	// half its base weight.
	HalfLife time.Duration

	// EventWindow bounds how far back the builder reads.
	EventWindow time.Duration

	// MaxEvents caps events read per build.
	MaxEvents int

	// CacheTTL is how long a cached profile stays fresh.
	CacheTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HalfLife:    72 * time.Hour,
		EventWindow: 30 * 24 * time.Hour,
		MaxEvents:   10000,
		CacheTTL:    15 * time.Minute,
	}
}

// Builder computes interest profiles from the behavior log, with an
// optional materialized cache in front.
type Builder struct {
	source EventSource
	cache  *Store
	cfg    Config

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewBuilder creates a profile builder. cache may be nil to disable
// caching.
func NewBuilder(source EventSource, cache *Store, cfg Config) *Builder {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = DefaultConfig().HalfLife
	}
	if cfg.EventWindow <= 0 {
		cfg.EventWindow = DefaultConfig().EventWindow
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultConfig().MaxEvents
	}
	return &Builder{
		source: source,
		cache:  cache,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Profile returns the user's interest profile, serving from the cache
// when fresh and rebuilding otherwise. Cache failures degrade to a
// rebuild, never to an error.
func (b *Builder) Profile(ctx context.Context, userID string) (*InterestProfile, error) {
	if b.cache != nil {
		cached, ok, err := b.cache.Get(userID)
		if err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("profile cache read failed")
		}
		metrics.RecordCacheLookup(metrics.ProfileCacheHits, ok)
		if ok {
			return cached, nil
		}
	}

	built, err := b.Build(ctx, userID)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if err := b.cache.Put(built); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("profile cache write failed")
		}
	}
	return built, nil
}

// Build recomputes the profile from the behavior log, bypassing the
// cache. The result depends only on the events and their timestamps:
// arrival order never matters.
func (b *Builder) Build(ctx context.Context, userID string) (*InterestProfile, error) {
	start := time.Now()
	defer func() {
		metrics.ProfileBuildDuration.Observe(time.Since(start).Seconds())
	}()

	now := b.now().UTC()
	since := now.Add(-b.cfg.EventWindow)

	events, err := b.source.EventsForUser(ctx, userID, since, b.cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", userID, err)
	}

	p := NewInterestProfile(userID)
	p.BuiltAt = now
	if len(events) == 0 {
		return p, nil
	}

	topicsByContent, err := b.loadTopics(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("load content topics: %w", err)
	}

	for i := range events {
		event := &events[i]
		weight := b.decayedWeight(event, now)
		if weight <= 0 {
			continue
		}

		p.ContentTypes[string(event.ContentType)] += weight
		p.Behaviors[string(event.Type)] += weight

		if event.ContentType == behavior.ContentTopic {
			// Direct topic interactions (follows, searches) accrue to
			// the topic itself.
			p.Topics[event.ContentID] += weight
			continue
		}
		for topic, relevance := range topicsByContent[event.ContentID] {
			p.Topics[topic] += weight * relevance
		}
	}
	p.EventCount = len(events)

	return p, nil
}

// Invalidate drops the cached profile so the next read rebuilds.
func (b *Builder) Invalidate(userID string) {
	if b.cache != nil {
		if err := b.cache.Delete(userID); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("profile cache invalidation failed")
		}
	}
}

// decayedWeight is baseWeight(type) * 0.5^(age/halfLife). Events from
// the future (clock skew) count at full weight.
func (b *Builder) decayedWeight(event *behavior.Event, now time.Time) float64 {
	base := event.Type.BaseWeight()
	if base == 0 {
		return 0
	}
	age := now.Sub(event.Timestamp)
	if age <= 0 {
		return base
	}
	decay := math.Exp(-age.Seconds() * math.Ln2 / b.cfg.HalfLife.Seconds())
	return base * decay
}

// loadTopics fetches topic vectors for every distinct content ID in the
// event batch.
func (b *Builder) loadTopics(ctx context.Context, events []behavior.Event) (map[string]map[string]float64, error) {
	idSet := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for i := range events {
		id := events[i].ContentID
		if _, ok := idSet[id]; ok {
			continue
		}
		idSet[id] = struct{}{}
		ids = append(ids, id)
	}

	items, err := b.source.ContentItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	topics := make(map[string]map[string]float64, len(items))
	for _, item := range items {
		topics[item.ID] = item.Topics
	}
	return topics, nil
}
