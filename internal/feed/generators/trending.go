// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package generators

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/cache"
	"github.com/mfaulds/feedrank/internal/feed"
)

// Window is a named trending time window.
type Window string

// Trending windows.
const (
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// Duration maps a named window to its span. Unknown windows fall back
// to a week.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowDay:
		return 24 * time.Hour
	case WindowMonth:
		return 720 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// TrendingConfig holds trending generator settings.
type TrendingConfig struct {
	// Window is the default engagement window.
	Window Window

	// HalfLife is the content age decay half-life: engagement on
	// day-old content outweighs the same engagement on week-old content.
	HalfLife time.Duration

	// PoolSize caps aggregated items fetched per query.
	PoolSize int

	// CacheTTL bounds staleness of cached trending results. Trending is
	// identical for every caller, so short caching absorbs most load.
	CacheTTL time.Duration
}

// DefaultTrendingConfig returns production defaults.
func DefaultTrendingConfig() TrendingConfig {
	return TrendingConfig{
		Window:   WindowWeek,
		HalfLife: 48 * time.Hour,
		PoolSize: 500,
		CacheTTL: time.Minute,
	}
}

// Trending recommends globally popular content:
// views + reactions x2 + comments x3 + shares x5, decayed by content
// age. It needs no profile, which makes it the cold start fallback and
// the composer's backfill source.
type Trending struct {
	store Store
	cfg   TrendingConfig
	cache *cache.Cache[[]feed.Recommendation]

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewTrending creates the trending generator.
func NewTrending(store Store, cfg TrendingConfig) *Trending {
	defaults := DefaultTrendingConfig()
	if cfg.Window == "" {
		cfg.Window = defaults.Window
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = defaults.HalfLife
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	g := &Trending{store: store, cfg: cfg, now: time.Now}
	g.cache = cache.New[[]feed.Recommendation](cfg.CacheTTL, cache.WithClock(func() time.Time {
		return g.now()
	}))
	return g
}

// Source implements feed.Generator.
func (g *Trending) Source() feed.Source {
	return feed.SourceTrending
}

// Generate returns trending content over the default window. The userID
// is ignored: trending is profile-independent by design of the contract,
// identical for every caller.
func (g *Trending) Generate(ctx context.Context, _ string, contentType behavior.ContentType, limit int) ([]feed.Recommendation, error) {
	return g.GenerateWindow(ctx, contentType, g.cfg.Window, limit)
}

// GenerateWindow returns trending content over an explicit window,
// used directly by the public trending endpoint.
func (g *Trending) GenerateWindow(ctx context.Context, contentType behavior.ContentType, window Window, limit int) ([]feed.Recommendation, error) {
	key := cache.Key(string(contentType), string(window), strconv.Itoa(limit))
	if cached, ok := g.cache.Get(key); ok {
		// Callers rescore and reorder their copy.
		return slices.Clone(cached), nil
	}

	now := g.now().UTC()
	stats, err := g.store.EngagementStats(ctx, contentType, now.Add(-window.Duration()), g.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("trending: engagement stats: %w", err)
	}

	recs := make([]feed.Recommendation, 0, len(stats))
	for _, s := range stats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		score := s.RawScore() * g.ageDecay(s.CreatedAt, now)
		if score <= 0 {
			continue
		}
		recs = append(recs, feed.Recommendation{
			ContentID:   s.ContentID,
			ContentType: s.ContentType,
			Score:       score,
			Source:      feed.SourceTrending,
			Reason:      feed.ReasonTrending,
			CreatedAt:   s.CreatedAt,
			Explanation: fmt.Sprintf("trending this %s", window),
		})
	}

	recs = sortAndTruncate(recs, limit)
	normalizeScores(recs)
	g.cache.Set(key, slices.Clone(recs))
	return recs, nil
}

// ageDecay is 0.5^(age/halfLife) over the content's publish age.
func (g *Trending) ageDecay(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 1
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp(-age.Seconds() * math.Ln2 / g.cfg.HalfLife.Seconds())
}
