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

// CollaborativeConfig holds collaborative generator settings.
type CollaborativeConfig struct {
	// Neighbors is how many similar users to consult.
	Neighbors int

	// EngagementWindow bounds how old neighbor engagements may be.
	EngagementWindow time.Duration

	// SeenWindow is how far back the target's own interactions exclude
	// content.
	SeenWindow time.Duration

	// PoolSize caps neighbor engagements fetched per query.
	PoolSize int
}

// DefaultCollaborativeConfig returns production defaults.
func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{
		Neighbors:        20,
		EngagementWindow: 7 * 24 * time.Hour,
		SeenWindow:       14 * 24 * time.Hour,
		PoolSize:         1000,
	}
}

// Collaborative surfaces content that users with similar interest
// profiles engaged with positively, weighted by neighbor similarity and
// engagement strength.
type Collaborative struct {
	neighbors NeighborSource
	store     Store
	cfg       CollaborativeConfig

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewCollaborative creates the collaborative generator.
func NewCollaborative(neighbors NeighborSource, store Store, cfg CollaborativeConfig) *Collaborative {
	defaults := DefaultCollaborativeConfig()
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = defaults.Neighbors
	}
	if cfg.EngagementWindow <= 0 {
		cfg.EngagementWindow = defaults.EngagementWindow
	}
	if cfg.SeenWindow <= 0 {
		cfg.SeenWindow = defaults.SeenWindow
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	return &Collaborative{neighbors: neighbors, store: store, cfg: cfg, now: time.Now}
}

// Source implements feed.Generator.
func (g *Collaborative) Source() feed.Source {
	return feed.SourceCollaborative
}

// Generate scores each candidate by sum over neighbors of
// similarity x engagement strength. Users without neighbors (cold
// start, empty profile) get an empty result.
func (g *Collaborative) Generate(ctx context.Context, userID string, contentType behavior.ContentType, limit int) ([]feed.Recommendation, error) {
	nearest, err := g.neighbors.NearestUsers(ctx, userID, g.cfg.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("collaborative: nearest users: %w", err)
	}
	if len(nearest) == 0 {
		return nil, nil
	}

	simByUser := make(map[string]float64, len(nearest))
	neighborIDs := make([]string, 0, len(nearest))
	for _, n := range nearest {
		simByUser[n.UserID] = n.Similarity
		neighborIDs = append(neighborIDs, n.UserID)
	}

	now := g.now().UTC()
	engagements, err := g.store.PositiveEvents(ctx, neighborIDs, contentType,
		now.Add(-g.cfg.EngagementWindow), g.cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("collaborative: neighbor engagements: %w", err)
	}
	if len(engagements) == 0 {
		return nil, nil
	}

	seen, err := g.store.SeenContentIDs(ctx, userID, contentType, now.Add(-g.cfg.SeenWindow))
	if err != nil {
		return nil, fmt.Errorf("collaborative: seen content: %w", err)
	}

	scores := make(map[string]float64)
	supporters := make(map[string]map[string]struct{})
	for i := range engagements {
		event := &engagements[i]
		if _, ok := seen[event.ContentID]; ok {
			continue
		}
		sim := simByUser[event.UserID]
		scores[event.ContentID] += sim * event.Type.BaseWeight()
		if supporters[event.ContentID] == nil {
			supporters[event.ContentID] = make(map[string]struct{})
		}
		supporters[event.ContentID][event.UserID] = struct{}{}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	createdAt, err := g.contentCreatedAt(ctx, scores)
	if err != nil {
		return nil, err
	}

	recs := make([]feed.Recommendation, 0, len(scores))
	for contentID, score := range scores {
		recs = append(recs, feed.Recommendation{
			ContentID:   contentID,
			ContentType: contentType,
			Score:       score,
			Source:      feed.SourceCollaborative,
			Reason:      feed.ReasonSimilarUsers,
			CreatedAt:   createdAt[contentID],
			Explanation: fmt.Sprintf("popular with %d users like you", len(supporters[contentID])),
		})
	}

	recs = sortAndTruncate(recs, limit)
	normalizeScores(recs)
	return recs, nil
}

// contentCreatedAt fetches publish times for the candidate set. Content
// missing from the catalog keeps a zero time and loses recency ties.
func (g *Collaborative) contentCreatedAt(ctx context.Context, scores map[string]float64) (map[string]time.Time, error) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	items, err := g.store.ContentItems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("collaborative: content items: %w", err)
	}
	createdAt := make(map[string]time.Time, len(items))
	for _, item := range items {
		createdAt[item.ID] = item.CreatedAt
	}
	return createdAt, nil
}
