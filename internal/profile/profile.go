// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package profile builds interest profiles from the behavior log.
//
// A profile is a pure function of the user's events: the builder reads a
// bounded recent window, weights each event by its behavior type and a
// half-life recency decay, and accumulates per-topic, per-content-type
// and per-behavior-type sums. Rebuilding from the same log always yields
// the same profile, so builds are idempotent and need no locking.
package profile

import (
	"sort"
	"time"
)

// InterestProfile is a user's derived interest vector. All weights are
// raw decayed sums; use DisplayNormalize for presentation.
type InterestProfile struct {
	// UserID is the profile owner.
	UserID string `json:"user_id"`

	// Topics maps topic tags to accumulated interest weight.
	Topics map[string]float64 `json:"topics"`

	// ContentTypes maps content types to accumulated weight.
	ContentTypes map[string]float64 `json:"content_types"`

	// Behaviors maps behavior types to accumulated weight.
	Behaviors map[string]float64 `json:"behaviors"`

	// EventCount is how many events contributed to this profile.
	EventCount int `json:"event_count"`

	// BuiltAt is when the profile was computed.
	BuiltAt time.Time `json:"built_at"`
}

// NewInterestProfile returns an empty profile for the user. A user with
// no events gets an empty profile, never an error.
func NewInterestProfile(userID string) *InterestProfile {
	return &InterestProfile{
		UserID:       userID,
		Topics:       make(map[string]float64),
		ContentTypes: make(map[string]float64),
		Behaviors:    make(map[string]float64),
	}
}

// Empty reports whether the profile carries no interest signal.
func (p *InterestProfile) Empty() bool {
	return p == nil || len(p.Topics) == 0
}

// TopicWeight is a topic with its weight, for sorted views.
type TopicWeight struct {
	Topic  string  `json:"topic"`
	Weight float64 `json:"weight"`
}

// TopTopics returns the n highest-weighted topics, descending, with
// alphabetical tie-breaking for deterministic output.
func (p *InterestProfile) TopTopics(n int) []TopicWeight {
	ranked := make([]TopicWeight, 0, len(p.Topics))
	for topic, weight := range p.Topics {
		ranked = append(ranked, TopicWeight{Topic: topic, Weight: weight})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Topic < ranked[j].Topic
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// DisplayNormalize returns topic weights scaled to percent-of-max
// (strongest interest = 100). Presentation only: similarity and ranking
// always work on the raw sums.
func (p *InterestProfile) DisplayNormalize() map[string]float64 {
	out := make(map[string]float64, len(p.Topics))
	var max float64
	for _, w := range p.Topics {
		if w > max {
			max = w
		}
	}
	if max == 0 {
		return out
	}
	for topic, w := range p.Topics {
		out[topic] = w / max * 100
	}
	return out
}
