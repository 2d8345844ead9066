// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package similarity finds users with similar interest profiles using
// sparse cosine similarity over topic-weight maps.
//
// Results are cached with a short TTL instead of being invalidated on
// every new event: neighbor sets drift slowly, and bounded staleness is
// the documented trade-off.
package similarity

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/mfaulds/feedrank/internal/cache"
	"github.com/mfaulds/feedrank/internal/metrics"
	"github.com/mfaulds/feedrank/internal/profile"
)

// ProfileSource yields interest profiles. Implemented by profile.Builder.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*profile.InterestProfile, error)
}

// UserSource yields the candidate user population. Implemented by the
// database package.
type UserSource interface {
	ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// Neighbor is a similar user with their cosine similarity in [0,1].
type Neighbor struct {
	// UserID identifies the similar user.
	UserID string `json:"user_id"`

	// Similarity is the cosine similarity to the query user.
	Similarity float64 `json:"similarity"`
}

// Config holds index settings.
type Config struct {
	// CacheTTL bounds staleness of cached neighbor lists.
	CacheTTL time.Duration

	// MaxCandidates caps how many active users one query scans.
	MaxCandidates int

	// ActiveWindow defines which users count as candidates.
	ActiveWindow time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:      10 * time.Minute,
		MaxCandidates: 5000,
		ActiveWindow:  7 * 24 * time.Hour,
	}
}

// Index computes nearest users by interest profile.
type Index struct {
	profiles ProfileSource
	users    UserSource
	cfg      Config
	cache    *cache.Cache[[]Neighbor]

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewIndex creates a similarity index.
func NewIndex(profiles ProfileSource, users UserSource, cfg Config) *Index {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultConfig().MaxCandidates
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = DefaultConfig().ActiveWindow
	}
	idx := &Index{
		profiles: profiles,
		users:    users,
		cfg:      cfg,
		now:      time.Now,
	}
	// The clock closure reads idx.now at call time so cache expiry
	// follows the injected clock in tests.
	idx.cache = cache.New[[]Neighbor](cfg.CacheTTL, cache.WithClock(func() time.Time {
		return idx.now()
	}))
	return idx
}

// NearestUsers returns up to k users most similar to userID, descending
// by similarity. Users with empty profiles never appear: similarity to
// an all-zero vector is defined as 0 and excluded. A query user with an
// empty profile gets an empty result.
func (idx *Index) NearestUsers(ctx context.Context, userID string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	key := cache.Key(userID, strconv.Itoa(k))
	if cached, ok := idx.cache.Get(key); ok {
		metrics.RecordCacheLookup(metrics.SimilarityCacheHits, true)
		return cached, nil
	}
	metrics.RecordCacheLookup(metrics.SimilarityCacheHits, false)

	target, err := idx.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for %s: %w", userID, err)
	}
	if target.Empty() {
		idx.cache.Set(key, nil)
		return nil, nil
	}

	candidates, err := idx.users.ActiveUsers(ctx, idx.now().Add(-idx.cfg.ActiveWindow), idx.cfg.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("load candidate users: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(candidates))
	for _, candidateID := range candidates {
		if candidateID == userID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := idx.profiles.Profile(ctx, candidateID)
		if err != nil {
			// One unloadable candidate should not sink the query.
			continue
		}
		sim := Cosine(target.Topics, candidate.Topics)
		if sim <= 0 {
			continue
		}
		neighbors = append(neighbors, Neighbor{UserID: candidateID, Similarity: sim})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].UserID < neighbors[j].UserID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	idx.cache.Set(key, neighbors)
	return neighbors, nil
}

// Cosine computes cosine similarity between two sparse weight vectors.
// Keys absent from a map are zero. Either vector empty (or all zero)
// yields 0.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller map for the dot product.
	if len(b) < len(a) {
		a, b = b, a
	}

	var dot float64
	for key, av := range a {
		if bv, ok := b[key]; ok {
			dot += av * bv
		}
	}
	if dot == 0 {
		return 0
	}

	var normA, normB float64
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
