// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package generators implements the candidate generation strategies:
// content-based (profile match), collaborative (similar users) and
// trending (global engagement).
//
// Generators share three rules: honor ctx cancellation, normalize scores
// to [0,1] so sources compare in the composer, and return an empty slice
// when there is nothing to recommend. Empty is never an error.
package generators

import (
	"context"
	"sort"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/profile"
	"github.com/mfaulds/feedrank/internal/similarity"
)

// Store provides the behavior log and catalog reads generators need.
// Implemented by the database package; tests use in-memory fakes.
type Store interface {
	// UnseenContent returns catalog candidates the user has not
	// recently interacted with.
	UnseenContent(ctx context.Context, userID string, contentType behavior.ContentType, publishedAfter, seenAfter time.Time, limit int) ([]feed.ContentItem, error)

	// SeenContentIDs returns content the user interacted with in the window.
	SeenContentIDs(ctx context.Context, userID string, contentType behavior.ContentType, since time.Time) (map[string]struct{}, error)

	// PositiveEvents returns strong positive engagements by the given users.
	PositiveEvents(ctx context.Context, userIDs []string, contentType behavior.ContentType, since time.Time, limit int) ([]behavior.Event, error)

	// ContentItems returns catalog entries for the given IDs.
	ContentItems(ctx context.Context, ids []string) ([]feed.ContentItem, error)

	// EngagementStats aggregates engagement counts per content item.
	EngagementStats(ctx context.Context, contentType behavior.ContentType, since time.Time, limit int) ([]feed.EngagementStats, error)
}

// ProfileSource yields interest profiles. Implemented by profile.Builder.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (*profile.InterestProfile, error)
}

// NeighborSource yields similar users. Implemented by similarity.Index.
type NeighborSource interface {
	NearestUsers(ctx context.Context, userID string, k int) ([]similarity.Neighbor, error)
}

// normalizeScores rescales scores to [0,1] with min-max normalization.
// All-equal scores map to 0.5 so a flat batch still carries signal.
func normalizeScores(recs []feed.Recommendation) {
	if len(recs) == 0 {
		return
	}

	minScore, maxScore := recs[0].Score, recs[0].Score
	for _, r := range recs[1:] {
		if r.Score < minScore {
			minScore = r.Score
		}
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}

	spread := maxScore - minScore
	if spread == 0 {
		for i := range recs {
			recs[i].Score = 0.5
		}
		return
	}
	for i := range recs {
		recs[i].Score = (recs[i].Score - minScore) / spread
	}
}

// sortAndTruncate orders by score descending with newer content winning
// ties, then cuts to limit.
func sortAndTruncate(recs []feed.Recommendation, limit int) []feed.Recommendation {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ContentID < recs[j].ContentID
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
