// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package generators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/feed"
	"github.com/mfaulds/feedrank/internal/profile"
	"github.com/mfaulds/feedrank/internal/similarity"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// mockStore is an in-memory Store.
type mockStore struct {
	unseen     []feed.ContentItem
	seen       map[string]struct{}
	positive   []behavior.Event
	items      map[string]feed.ContentItem
	stats      []feed.EngagementStats
	err        error
	statsSince time.Time
	statsCalls int
}

func (m *mockStore) UnseenContent(_ context.Context, _ string, _ behavior.ContentType, _, _ time.Time, limit int) ([]feed.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.unseen) > limit {
		return m.unseen[:limit], nil
	}
	return m.unseen, nil
}

func (m *mockStore) SeenContentIDs(_ context.Context, _ string, _ behavior.ContentType, _ time.Time) (map[string]struct{}, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.seen == nil {
		return map[string]struct{}{}, nil
	}
	return m.seen, nil
}

func (m *mockStore) PositiveEvents(_ context.Context, userIDs []string, _ behavior.ContentType, _ time.Time, _ int) ([]behavior.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	allowed := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		allowed[id] = struct{}{}
	}
	var out []behavior.Event
	for _, e := range m.positive {
		if _, ok := allowed[e.UserID]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) ContentItems(_ context.Context, ids []string) ([]feed.ContentItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []feed.ContentItem
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockStore) EngagementStats(_ context.Context, _ behavior.ContentType, since time.Time, _ int) ([]feed.EngagementStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.statsSince = since
	m.statsCalls++
	return m.stats, nil
}

// staticProfiles returns a fixed profile for every user.
type staticProfiles struct {
	topics map[string]float64
	err    error
}

func (s *staticProfiles) Profile(_ context.Context, userID string) (*profile.InterestProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := profile.NewInterestProfile(userID)
	for topic, w := range s.topics {
		p.Topics[topic] = w
	}
	return p, nil
}

// staticNeighbors returns a fixed neighbor list.
type staticNeighbors struct {
	neighbors []similarity.Neighbor
	err       error
}

func (s *staticNeighbors) NearestUsers(_ context.Context, _ string, k int) ([]similarity.Neighbor, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.neighbors) > k {
		return s.neighbors[:k], nil
	}
	return s.neighbors, nil
}

func item(id string, topics map[string]float64, age time.Duration) feed.ContentItem {
	return feed.ContentItem{
		ID:          id,
		ContentType: behavior.ContentPost,
		Topics:      topics,
		CreatedAt:   testNow.Add(-age),
	}
}

func positiveEvent(userID string, bt behavior.Type, contentID string) behavior.Event {
	e := behavior.NewEvent(userID, bt, contentID, behavior.ContentPost)
	e.Timestamp = testNow.Add(-time.Hour)
	return *e
}

func TestContentBasedRanksByProfileMatch(t *testing.T) {
	store := &mockStore{unseen: []feed.ContentItem{
		item("pasta", map[string]float64{"cooking": 1.0}, time.Hour),
		item("trail", map[string]float64{"hiking": 1.0}, time.Hour),
		item("both", map[string]float64{"cooking": 0.5, "hiking": 0.5}, time.Hour),
		item("crypto", map[string]float64{"finance": 1.0}, time.Hour),
	}}
	g := NewContentBased(&staticProfiles{topics: map[string]float64{"cooking": 5.0, "hiking": 1.0}}, store, ContentBasedConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}

	// finance has no profile overlap and must be absent.
	if len(recs) != 3 {
		t.Fatalf("got %d recs, want 3: %+v", len(recs), recs)
	}
	if recs[0].ContentID != "pasta" {
		t.Errorf("top = %s, want pasta (strongest interest)", recs[0].ContentID)
	}
	if recs[0].Source != feed.SourceContentBased || recs[0].Reason != feed.ReasonInterestMatch {
		t.Errorf("tagging wrong: %+v", recs[0])
	}
	if recs[0].Score < recs[1].Score || recs[1].Score < recs[2].Score {
		t.Error("scores not descending")
	}
	if recs[0].Explanation == "" {
		t.Error("expected explanation naming the matched topic")
	}
}

func TestContentBasedColdStartEmpty(t *testing.T) {
	store := &mockStore{unseen: []feed.ContentItem{
		item("pasta", map[string]float64{"cooking": 1.0}, time.Hour),
	}}
	g := NewContentBased(&staticProfiles{}, store, ContentBasedConfig{})

	recs, err := g.Generate(context.Background(), "newcomer", behavior.ContentPost, 10)
	if err != nil {
		t.Fatalf("cold start must not error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("cold start recs = %+v, want none", recs)
	}
}

func TestContentBasedRecencyTieBreak(t *testing.T) {
	store := &mockStore{unseen: []feed.ContentItem{
		item("old", map[string]float64{"cooking": 1.0}, 48*time.Hour),
		item("new", map[string]float64{"cooking": 1.0}, time.Hour),
	}}
	g := NewContentBased(&staticProfiles{topics: map[string]float64{"cooking": 1.0}}, store, ContentBasedConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].ContentID != "new" {
		t.Errorf("tie should go to newer content, got %s first", recs[0].ContentID)
	}
}

func TestCollaborativeWeighting(t *testing.T) {
	store := &mockStore{
		positive: []behavior.Event{
			positiveEvent("close", behavior.TypeLike, "liked-by-close"),
			positiveEvent("far", behavior.TypeLike, "liked-by-far"),
			positiveEvent("close", behavior.TypeLike, "already-seen"),
		},
		seen: map[string]struct{}{"already-seen": {}},
		items: map[string]feed.ContentItem{
			"liked-by-close": item("liked-by-close", nil, time.Hour),
			"liked-by-far":   item("liked-by-far", nil, time.Hour),
		},
	}
	neighbors := &staticNeighbors{neighbors: []similarity.Neighbor{
		{UserID: "close", Similarity: 0.9},
		{UserID: "far", Similarity: 0.2},
	}}
	g := NewCollaborative(neighbors, store, CollaborativeConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "me", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(recs) != 2 {
		t.Fatalf("got %d recs, want 2 (seen content excluded): %+v", len(recs), recs)
	}
	if recs[0].ContentID != "liked-by-close" {
		t.Errorf("top = %s, want content from the more similar neighbor", recs[0].ContentID)
	}
	if recs[0].Reason != feed.ReasonSimilarUsers {
		t.Errorf("reason = %s", recs[0].Reason)
	}
}

func TestCollaborativeEngagementStrength(t *testing.T) {
	// Same neighbor, save (5.0) must outrank like (2.0).
	store := &mockStore{
		positive: []behavior.Event{
			positiveEvent("n1", behavior.TypeLike, "liked"),
			positiveEvent("n1", behavior.TypeSave, "saved"),
		},
		items: map[string]feed.ContentItem{
			"liked": item("liked", nil, time.Hour),
			"saved": item("saved", nil, time.Hour),
		},
	}
	g := NewCollaborative(&staticNeighbors{neighbors: []similarity.Neighbor{
		{UserID: "n1", Similarity: 0.5},
	}}, store, CollaborativeConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "me", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].ContentID != "saved" {
		t.Errorf("top = %s, want saved (stronger engagement)", recs[0].ContentID)
	}
}

func TestCollaborativeNoNeighborsEmpty(t *testing.T) {
	g := NewCollaborative(&staticNeighbors{}, &mockStore{}, CollaborativeConfig{})

	recs, err := g.Generate(context.Background(), "loner", behavior.ContentPost, 10)
	if err != nil {
		t.Fatalf("no neighbors must not error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recs = %+v, want none", recs)
	}
}

func TestCollaborativePropagatesStoreError(t *testing.T) {
	storeErr := errors.New("store down")
	g := NewCollaborative(&staticNeighbors{neighbors: []similarity.Neighbor{
		{UserID: "n1", Similarity: 0.5},
	}}, &mockStore{err: storeErr}, CollaborativeConfig{})

	if _, err := g.Generate(context.Background(), "me", behavior.ContentPost, 10); !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}

func TestTrendingFormulaOrdering(t *testing.T) {
	store := &mockStore{stats: []feed.EngagementStats{
		{ContentID: "viral", ContentType: behavior.ContentPost, Views: 10, Shares: 20, CreatedAt: testNow.Add(-time.Hour)},
		{ContentID: "viewed", ContentType: behavior.ContentPost, Views: 50, CreatedAt: testNow.Add(-time.Hour)},
		{ContentID: "quiet", ContentType: behavior.ContentPost, Views: 1, CreatedAt: testNow.Add(-time.Hour)},
	}}
	g := NewTrending(store, TrendingConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "anyone", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}

	// viral: 10 + 20*5 = 110 beats viewed: 50.
	if recs[0].ContentID != "viral" {
		t.Errorf("top = %s, want viral (share-weighted)", recs[0].ContentID)
	}
	if recs[0].Reason != feed.ReasonTrending {
		t.Errorf("reason = %s", recs[0].Reason)
	}
}

func TestTrendingAgeDecay(t *testing.T) {
	store := &mockStore{stats: []feed.EngagementStats{
		{ContentID: "old-hit", ContentType: behavior.ContentPost, Views: 100, CreatedAt: testNow.Add(-10 * 24 * time.Hour)},
		{ContentID: "new-hit", ContentType: behavior.ContentPost, Views: 100, CreatedAt: testNow.Add(-2 * time.Hour)},
	}}
	g := NewTrending(store, TrendingConfig{})
	g.now = func() time.Time { return testNow }

	recs, err := g.Generate(context.Background(), "anyone", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].ContentID != "new-hit" {
		t.Errorf("top = %s, want new-hit (same counts, fresher content)", recs[0].ContentID)
	}
}

func TestTrendingWindowSelection(t *testing.T) {
	store := &mockStore{}
	g := NewTrending(store, TrendingConfig{})
	g.now = func() time.Time { return testNow }

	if _, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowDay, 10); err != nil {
		t.Fatal(err)
	}
	wantSince := testNow.Add(-24 * time.Hour)
	if !store.statsSince.Equal(wantSince) {
		t.Errorf("day window since = %s, want %s", store.statsSince, wantSince)
	}

	if _, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowMonth, 10); err != nil {
		t.Fatal(err)
	}
	wantSince = testNow.Add(-720 * time.Hour)
	if !store.statsSince.Equal(wantSince) {
		t.Errorf("month window since = %s, want %s", store.statsSince, wantSince)
	}
}

func TestTrendingResultCaching(t *testing.T) {
	store := &mockStore{stats: []feed.EngagementStats{
		{ContentID: "hit", ContentType: behavior.ContentPost, Views: 10, CreatedAt: testNow.Add(-time.Hour)},
	}}
	g := NewTrending(store, TrendingConfig{CacheTTL: time.Minute})
	current := testNow
	g.now = func() time.Time { return current }

	first, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowWeek, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowWeek, 10)
	if err != nil {
		t.Fatal(err)
	}
	if store.statsCalls != 1 {
		t.Errorf("stats queries = %d, want 1 (second served from cache)", store.statsCalls)
	}
	if len(second) != len(first) || second[0].ContentID != first[0].ContentID {
		t.Errorf("cached result differs: %+v vs %+v", second, first)
	}

	// Mutating the returned slice must not poison the cache.
	second[0].Score = -1
	third, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowWeek, 10)
	if err != nil {
		t.Fatal(err)
	}
	if third[0].Score == -1 {
		t.Error("caller mutation leaked into cache")
	}

	current = current.Add(2 * time.Minute)
	if _, err := g.GenerateWindow(context.Background(), behavior.ContentPost, WindowWeek, 10); err != nil {
		t.Fatal(err)
	}
	if store.statsCalls != 2 {
		t.Errorf("stats queries = %d, want 2 after cache expiry", store.statsCalls)
	}
}

func TestNormalizeScores(t *testing.T) {
	recs := []feed.Recommendation{
		{ContentID: "a", Score: 10},
		{ContentID: "b", Score: 5},
		{ContentID: "c", Score: 0},
	}
	normalizeScores(recs)
	if recs[0].Score != 1 || recs[1].Score != 0.5 || recs[2].Score != 0 {
		t.Errorf("normalized = %+v", recs)
	}

	flat := []feed.Recommendation{{Score: 3}, {Score: 3}}
	normalizeScores(flat)
	if flat[0].Score != 0.5 || flat[1].Score != 0.5 {
		t.Errorf("flat batch = %+v, want all 0.5", flat)
	}

	normalizeScores(nil) // must not panic
}
