// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package generators

import (
	"context"
	"fmt"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
)

// ContentBasedConfig holds content-based generator settings.
type ContentBasedConfig struct {
	// CandidateWindow bounds how old candidate content may be.
	CandidateWindow time.Duration

	// SeenWindow is how far back interactions exclude content.
	SeenWindow time.Duration

	// PoolSize caps the candidate pool fetched per query.
	PoolSize int
}

// DefaultContentBasedConfig returns production defaults.
func DefaultContentBasedConfig() ContentBasedConfig {
	return ContentBasedConfig{
		CandidateWindow: 14 * 24 * time.Hour,
		SeenWindow:      14 * 24 * time.Hour,
		PoolSize:        500,
	}
}

// ContentBased recommends unseen content whose topic vector matches the
// user's interest profile, scored by sparse dot product.
type ContentBased struct {
	profiles ProfileSource
	store    Store
	cfg      ContentBasedConfig

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewContentBased creates the content-based generator.
func NewContentBased(profiles ProfileSource, store Store, cfg ContentBasedConfig) *ContentBased {
	if cfg.CandidateWindow <= 0 {
		cfg.CandidateWindow = DefaultContentBasedConfig().CandidateWindow
	}
	if cfg.SeenWindow <= 0 {
		cfg.SeenWindow = DefaultContentBasedConfig().SeenWindow
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultContentBasedConfig().PoolSize
	}
	return &ContentBased{profiles: profiles, store: store, cfg: cfg, now: time.Now}
}

// Source implements feed.Generator.
func (g *ContentBased) Source() feed.Source {
	return feed.SourceContentBased
}

// Generate scores unseen candidates against the user's topic profile.
// A user with no profile (cold start) gets an empty result and relies
// on the trending generator.
func (g *ContentBased) Generate(ctx context.Context, userID string, contentType behavior.ContentType, limit int) ([]feed.Recommendation, error) {
	userProfile, err := g.profiles.Profile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("content-based: load profile: %w", err)
	}
	if userProfile.Empty() {
		return nil, nil
	}

	now := g.now().UTC()
	candidates, err := g.store.UnseenContent(ctx, userID, contentType,
		now.Add(-g.cfg.CandidateWindow), now.Add(-g.cfg.SeenWindow), g.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("content-based: load candidates: %w", err)
	}

	recs := make([]feed.Recommendation, 0, len(candidates))
	for _, item := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		score, bestTopic := profileMatch(userProfile.Topics, item.Topics)
		if score <= 0 {
			continue
		}
		recs = append(recs, feed.Recommendation{
			ContentID:   item.ID,
			ContentType: item.ContentType,
			Score:       score,
			Source:      feed.SourceContentBased,
			Reason:      feed.ReasonInterestMatch,
			CreatedAt:   item.CreatedAt,
			Explanation: fmt.Sprintf("matches your interest in %s", bestTopic),
		})
	}

	recs = sortAndTruncate(recs, limit)
	normalizeScores(recs)
	return recs, nil
}

// profileMatch is the sparse dot product of the profile against the item
// topic vector, also returning the strongest contributing topic.
func profileMatch(profileTopics, itemTopics map[string]float64) (float64, string) {
	var score, best float64
	var bestTopic string
	for topic, relevance := range itemTopics {
		weight, ok := profileTopics[topic]
		if !ok {
			continue
		}
		contribution := weight * relevance
		score += contribution
		if contribution > best {
			best = contribution
			bestTopic = topic
		}
	}
	return score, bestTopic
}
