// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package feed composes ranked, personalized feeds from independent
// candidate generators. It owns the shared recommendation types, the
// generator contract, and the composition pipeline: parallel fan-out,
// merge, diversity cap, trending backfill.
package feed

import (
	"context"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
)

// Source identifies which generator produced a recommendation.
type Source string

// Recommendation sources.
const (
	SourceContentBased  Source = "content_based"
	SourceCollaborative Source = "collaborative"
	SourceTrending      Source = "trending"
)

// Reason is the user-facing explanation category for a recommendation.
type Reason string

// Recommendation reasons.
const (
	ReasonInterestMatch Reason = "interest_match"
	ReasonSimilarUsers  Reason = "similar_users"
	ReasonTrending      Reason = "trending"
)

// Recommendation is one scored feed candidate.
type Recommendation struct {
	// ContentID identifies the recommended content.
	ContentID string `json:"content_id"`

	// ContentType is the kind of content (post, reel, ...).
	ContentType behavior.ContentType `json:"content_type"`

	// Score is the generator-assigned relevance score. Scores are
	// normalized to [0,1] within each generator so they compare across
	// sources.
	Score float64 `json:"score"`

	// Source is the generator that produced this candidate.
	Source Source `json:"source"`

	// Reason categorizes why this content was recommended.
	Reason Reason `json:"reason"`

	// CreatedAt is when the content was published, used for recency
	// tie-breaking.
	CreatedAt time.Time `json:"created_at"`

	// Explanation is an optional human-readable detail, e.g. the
	// matched topic.
	Explanation string `json:"explanation,omitempty"`
}

// ContentItem is the catalog view of a piece of content: its topic
// vector and publish time.
type ContentItem struct {
	// ID identifies the content.
	ID string

	// ContentType is the kind of content.
	ContentType behavior.ContentType

	// Topics maps topic tags to relevance weights in [0,1].
	Topics map[string]float64

	// CreatedAt is the publish time.
	CreatedAt time.Time
}

// EngagementStats aggregates raw engagement counts for one content item
// over a bounded window. The trending generator turns these into a
// decayed score.
type EngagementStats struct {
	// ContentID identifies the content.
	ContentID string

	// ContentType is the kind of content.
	ContentType behavior.ContentType

	// Views counts view events in the window.
	Views int64

	// Reactions counts like events in the window.
	Reactions int64

	// Comments counts comment events in the window.
	Comments int64

	// Shares counts share events in the window.
	Shares int64

	// CreatedAt is the content publish time (falls back to the earliest
	// observed engagement when the catalog has no entry).
	CreatedAt time.Time
}

// RawScore is the undecayed trending formula over the engagement counts.
func (s EngagementStats) RawScore() float64 {
	return float64(s.Views) + float64(s.Reactions)*2 + float64(s.Comments)*3 + float64(s.Shares)*5
}

// Generator produces scored candidates for one user from one strategy.
// Implementations must honor ctx cancellation, return scores normalized
// to [0,1], and treat "nothing to recommend" as an empty slice, not an
// error.
type Generator interface {
	// Source identifies the generator in results and metrics.
	Source() Source

	// Generate returns up to limit scored candidates for the user.
	Generate(ctx context.Context, userID string, contentType behavior.ContentType, limit int) ([]Recommendation, error)
}
