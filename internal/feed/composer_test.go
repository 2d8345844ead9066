// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package feed

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// mockGenerator is a scripted Generator.
type mockGenerator struct {
	source Source
	recs   []Recommendation
	err    error
	delay  time.Duration
}

func (m *mockGenerator) Source() Source { return m.source }

func (m *mockGenerator) Generate(ctx context.Context, _ string, _ behavior.ContentType, limit int) ([]Recommendation, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.recs) > limit {
		return m.recs[:limit], nil
	}
	return m.recs, nil
}

func rec(source Source, contentID string, score float64, age time.Duration) Recommendation {
	reason := ReasonTrending
	switch source {
	case SourceContentBased:
		reason = ReasonInterestMatch
	case SourceCollaborative:
		reason = ReasonSimilarUsers
	}
	return Recommendation{
		ContentID:   contentID,
		ContentType: behavior.ContentPost,
		Score:       score,
		Source:      source,
		Reason:      reason,
		CreatedAt:   testNow.Add(-age),
	}
}

func recBatch(source Source, prefix string, n int, topScore float64) []Recommendation {
	recs := make([]Recommendation, n)
	for i := 0; i < n; i++ {
		recs[i] = rec(source, fmt.Sprintf("%s-%02d", prefix, i), topScore-float64(i)*0.01, time.Hour)
	}
	return recs
}

// evenWeights makes every source count equally so tests reason about
// raw generator scores.
func evenWeights(cfg Config) Config {
	cfg.Weights = map[Source]float64{
		SourceContentBased:  1.0,
		SourceCollaborative: 1.0,
		SourceTrending:      1.0,
	}
	return cfg
}

func newComposer(t *testing.T, cfg Config, gens ...Generator) *Composer {
	t.Helper()
	c, err := NewComposer(gens, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestComposeColdStartEqualsTrending(t *testing.T) {
	trendingRecs := []Recommendation{
		rec(SourceTrending, "t1", 1.0, time.Hour),
		rec(SourceTrending, "t2", 0.8, time.Hour),
		rec(SourceTrending, "t3", 0.6, time.Hour),
	}
	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased},
		&mockGenerator{source: SourceCollaborative},
		&mockGenerator{source: SourceTrending, recs: trendingRecs},
	)

	got, err := c.Compose(context.Background(), "newcomer", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != len(trendingRecs) {
		t.Fatalf("got %d recs, want %d", len(got), len(trendingRecs))
	}
	for i := range got {
		if got[i].ContentID != trendingRecs[i].ContentID {
			t.Errorf("position %d = %s, want %s (cold start must equal trending)",
				i, got[i].ContentID, trendingRecs[i].ContentID)
		}
		if got[i].Source != SourceTrending {
			t.Errorf("source = %s, want trending", got[i].Source)
		}
	}
}

func TestComposeEmptySystem(t *testing.T) {
	c := newComposer(t, DefaultConfig(),
		&mockGenerator{source: SourceContentBased},
		&mockGenerator{source: SourceCollaborative},
		&mockGenerator{source: SourceTrending},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatalf("empty system must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d recs, want 0", len(got))
	}
}

func TestComposeLimitAndDedup(t *testing.T) {
	shared := rec(SourceContentBased, "shared", 0.9, time.Hour)
	sharedTrending := rec(SourceTrending, "shared", 0.7, time.Hour)

	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased, recs: append([]Recommendation{shared}, recBatch(SourceContentBased, "c", 10, 0.8)...)},
		&mockGenerator{source: SourceTrending, recs: append([]Recommendation{sharedTrending}, recBatch(SourceTrending, "t", 10, 0.6)...)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 5)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) > 5 {
		t.Errorf("got %d recs, limit 5 exceeded", len(got))
	}
	seen := make(map[string]int)
	for _, r := range got {
		seen[r.ContentID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("content %s appears %d times", id, n)
		}
	}
}

func TestComposeMergeKeepsWinningSource(t *testing.T) {
	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased, recs: []Recommendation{rec(SourceContentBased, "x", 0.4, time.Hour)}},
		&mockGenerator{source: SourceCollaborative, recs: []Recommendation{rec(SourceCollaborative, "x", 0.9, time.Hour)}},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d recs, want 1", len(got))
	}
	if got[0].Source != SourceCollaborative || got[0].Score != 0.9 {
		t.Errorf("winner = %s score %f, want collaborative 0.9", got[0].Source, got[0].Score)
	}
	if got[0].Reason != ReasonSimilarUsers {
		t.Errorf("reason = %s, want winning source's reason", got[0].Reason)
	}
}

func TestComposeDiversityCap(t *testing.T) {
	// One source dominates with 20 strong candidates; cap 40% of 20 = 8.
	cfg := evenWeights(DefaultConfig())
	c := newComposer(t, cfg,
		&mockGenerator{source: SourceContentBased, recs: recBatch(SourceContentBased, "c", 20, 1.0)},
		&mockGenerator{source: SourceCollaborative, recs: recBatch(SourceCollaborative, "s", 20, 0.5)},
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 20, 0.3)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Fatalf("got %d recs, want 20", len(got))
	}

	counts := make(map[Source]int)
	for _, r := range got {
		counts[r.Source]++
	}
	if counts[SourceContentBased] > 8 {
		t.Errorf("content-based holds %d of 20 slots, cap is 8", counts[SourceContentBased])
	}
	if counts[SourceCollaborative] == 0 || counts[SourceTrending] == 0 {
		t.Errorf("capped feed missing other sources: %v", counts)
	}
}

func TestComposeDiversityDemotesNotDrops(t *testing.T) {
	// 10 dominant + 4 from another source, limit 10, cap 0.4 -> 4 slots
	// for the dominant source's overflow to be demoted into the tail.
	cfg := evenWeights(DefaultConfig())
	c := newComposer(t, cfg,
		&mockGenerator{source: SourceContentBased, recs: recBatch(SourceContentBased, "c", 6, 1.0)},
		&mockGenerator{source: SourceCollaborative, recs: recBatch(SourceCollaborative, "s", 6, 0.5)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}

	// 12 candidates for 10 slots: cap demotes content-based items 5 and 6
	// below the collaborative block, but the feed still fills to 10.
	if len(got) != 10 {
		t.Fatalf("got %d recs, want 10 (demotion must not drop)", len(got))
	}
	counts := make(map[Source]int)
	for _, r := range got[:8] {
		counts[r.Source]++
	}
	if counts[SourceContentBased] > 4 {
		t.Errorf("top of feed holds %d content-based, cap is 4", counts[SourceContentBased])
	}
	total := make(map[Source]int)
	for _, r := range got {
		total[r.Source]++
	}
	if total[SourceContentBased] != 6 {
		t.Errorf("demoted items dropped: %d content-based in feed, want 6", total[SourceContentBased])
	}
}

func TestComposeTimeoutTreatedAsEmpty(t *testing.T) {
	cfg := evenWeights(DefaultConfig())
	cfg.GeneratorTimeout = 20 * time.Millisecond
	c := newComposer(t, cfg,
		&mockGenerator{source: SourceContentBased, delay: 200 * time.Millisecond, recs: recBatch(SourceContentBased, "c", 5, 1.0)},
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 5, 0.5)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatalf("timeout must degrade, not fail: %v", err)
	}
	for _, r := range got {
		if r.Source == SourceContentBased {
			t.Error("timed-out generator contributed results")
		}
	}
	if len(got) != 5 {
		t.Errorf("got %d recs, want the 5 trending ones", len(got))
	}
}

func TestComposePartialFailureDegrades(t *testing.T) {
	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased, err: errors.New("profile store exploded")},
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 3, 0.5)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d recs, want 3 from the healthy generator", len(got))
	}
}

func TestComposeAllFailedPropagatesUnavailable(t *testing.T) {
	storeDown := fmt.Errorf("query: %w", ErrUpstreamUnavailable)
	c := newComposer(t, DefaultConfig(),
		&mockGenerator{source: SourceContentBased, err: storeDown},
		&mockGenerator{source: SourceCollaborative, err: storeDown},
		&mockGenerator{source: SourceTrending, err: storeDown},
	)

	_, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestComposeBackfillFromTrending(t *testing.T) {
	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased, recs: recBatch(SourceContentBased, "c", 2, 1.0)},
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 20, 0.5)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("got %d recs, want backfill to 10", len(got))
	}
	if got[0].Source != SourceContentBased {
		t.Errorf("personalized results should lead, got %s", got[0].Source)
	}
}

func TestComposeDeterministic(t *testing.T) {
	build := func() *Composer {
		return newComposer(t, evenWeights(DefaultConfig()),
			&mockGenerator{source: SourceContentBased, recs: recBatch(SourceContentBased, "c", 8, 0.9)},
			&mockGenerator{source: SourceCollaborative, recs: recBatch(SourceCollaborative, "s", 8, 0.9)},
			&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 8, 0.9)},
		)
	}

	first, err := build().Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := build().Compose(context.Background(), "u1", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("same inputs produced different feeds")
	}
}

func TestComposeClampsLimit(t *testing.T) {
	cfg := evenWeights(DefaultConfig())
	c := newComposer(t, cfg,
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 60, 0.9)},
	)

	got, err := c.Compose(context.Background(), "u1", behavior.ContentPost, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != cfg.DefaultLimit {
		t.Errorf("limit 0: got %d, want default %d", len(got), cfg.DefaultLimit)
	}

	got, err = c.Compose(context.Background(), "u1", behavior.ContentPost, 100000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > cfg.MaxLimit {
		t.Errorf("limit clamp failed: got %d, max %d", len(got), cfg.MaxLimit)
	}
}

func TestComposeInterestScenario(t *testing.T) {
	// A user who engages with cooking content should see a fresh
	// cooking-tagged post at the top, annotated as an interest match.
	cookingPost := rec(SourceContentBased, "cooking-101", 1.0, time.Hour)
	cookingPost.Explanation = "matches your interest in cooking"

	c := newComposer(t, evenWeights(DefaultConfig()),
		&mockGenerator{source: SourceContentBased, recs: []Recommendation{cookingPost}},
		&mockGenerator{source: SourceTrending, recs: recBatch(SourceTrending, "t", 5, 0.4)},
	)

	got, err := c.Compose(context.Background(), "chef", behavior.ContentPost, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ContentID != "cooking-101" {
		t.Fatalf("top = %s, want cooking-101", got[0].ContentID)
	}
	if got[0].Reason != ReasonInterestMatch || got[0].Explanation == "" {
		t.Errorf("annotation missing: %+v", got[0])
	}
}
