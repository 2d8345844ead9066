// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mfaulds/feedrank/internal/behavior"
	"github.com/mfaulds/feedrank/internal/logging"
	"github.com/mfaulds/feedrank/internal/metrics"
)

// Composer fans out to the candidate generators in parallel and merges
// their results into one ranked feed.
//
// Failure policy: a slow or failing generator is treated as empty and
// the feed degrades gracefully; only when every generator fails does
// Compose return an error. Timeouts are bounded per generator, so one
// stuck strategy cannot sink the whole feed.
type Composer struct {
	generators []Generator
	cfg        Config

	// overfetch multiplies the per-generator ask over the final limit so
	// the merge, cap and backfill have material to work with.
	overfetch int
}

// NewComposer creates a composer over the given generators. Generator
// order is the tie-break when two sources score a candidate equally.
func NewComposer(gens []Generator, cfg Config) (*Composer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("composer config: %w", err)
	}
	if len(gens) == 0 {
		return nil, errors.New("composer needs at least one generator")
	}
	return &Composer{generators: gens, cfg: cfg, overfetch: 2}, nil
}

// generatorResult carries one generator's outcome across the join.
type generatorResult struct {
	source   Source
	recs     []Recommendation
	err      error
	timedOut bool
	duration time.Duration
}

// Compose builds a ranked feed of up to limit items for the user.
// The result never exceeds limit and never contains duplicates. Given
// the same underlying data it is deterministic.
func (c *Composer) Compose(ctx context.Context, userID string, contentType behavior.ContentType, limit int) ([]Recommendation, error) {
	start := time.Now()

	limit = c.clampLimit(limit)
	results := c.fanOut(ctx, userID, contentType, limit*c.overfetch)

	var failed, unavailable int
	for _, r := range results {
		if r.err != nil && !r.timedOut {
			failed++
			if errors.Is(r.err, ErrUpstreamUnavailable) {
				unavailable++
			}
			logging.Warn().
				Err(r.err).
				Str("source", string(r.source)).
				Str("user_id", userID).
				Msg("generator failed, composing without it")
		}
		metrics.ObserveGenerator(string(r.source), r.duration, len(r.recs), r.timedOut)
	}

	// Store-level outage: nothing to rank at all.
	if failed == len(results) {
		if unavailable > 0 {
			return nil, fmt.Errorf("compose for %s: all generators failed: %w", userID, ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("compose for %s: all generators failed: %w", userID, results[0].err)
	}

	degraded := failed > 0 || timedOutCount(results) > 0
	merged := c.merge(results)
	ranked := sortRecommendations(merged)
	ranked = c.applyDiversityCap(ranked, limit)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ranked = c.backfill(ranked, results, limit)

	metrics.ObserveCompose(time.Since(start), degraded)
	if degraded {
		logging.Debug().
			Str("user_id", userID).
			Int("failed", failed).
			Msg("feed served degraded")
	}
	return ranked, nil
}

// clampLimit normalizes a caller-supplied limit into [1, MaxLimit].
func (c *Composer) clampLimit(limit int) int {
	if limit <= 0 {
		return c.cfg.DefaultLimit
	}
	if limit > c.cfg.MaxLimit {
		return c.cfg.MaxLimit
	}
	return limit
}

// fanOut runs every generator concurrently, each under its own timeout,
// and joins once. Results keep generator order for determinism.
func (c *Composer) fanOut(ctx context.Context, userID string, contentType behavior.ContentType, fetchLimit int) []generatorResult {
	results := make([]generatorResult, len(c.generators))

	var wg sync.WaitGroup
	for i, gen := range c.generators {
		wg.Add(1)
		go func(i int, gen Generator) {
			defer wg.Done()

			genCtx, cancel := context.WithTimeout(ctx, c.cfg.GeneratorTimeout)
			defer cancel()

			genStart := time.Now()
			recs, err := gen.Generate(genCtx, userID, contentType, fetchLimit)
			results[i] = generatorResult{
				source:   gen.Source(),
				recs:     recs,
				err:      err,
				timedOut: err != nil && errors.Is(genCtx.Err(), context.DeadlineExceeded),
				duration: time.Since(genStart),
			}
			if results[i].timedOut {
				// A timeout is an empty contribution, not a failure.
				results[i].recs = nil
			}
		}(i, gen)
	}
	wg.Wait()

	return results
}

func timedOutCount(results []generatorResult) int {
	var n int
	for _, r := range results {
		if r.timedOut {
			n++
		}
	}
	return n
}

// merge folds all generator results into one candidate per content ID,
// keeping the highest weighted score and its source. Equal scores keep
// the earlier generator's claim.
func (c *Composer) merge(results []generatorResult) map[string]Recommendation {
	merged := make(map[string]Recommendation)
	for _, result := range results {
		if result.err != nil {
			continue
		}
		weight := c.cfg.weight(result.source)
		for _, rec := range result.recs {
			rec.Score *= weight
			existing, ok := merged[rec.ContentID]
			if !ok || rec.Score > existing.Score {
				merged[rec.ContentID] = rec
			}
		}
	}
	return merged
}

// sortRecommendations orders by score descending, newer content winning
// ties, content ID as the final tie-break for determinism.
func sortRecommendations(merged map[string]Recommendation) []Recommendation {
	ranked := make([]Recommendation, 0, len(merged))
	for _, rec := range merged {
		ranked = append(ranked, rec)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
		}
		return ranked[i].ContentID < ranked[j].ContentID
	})
	return ranked
}

// applyDiversityCap limits how much of the top-limit window one source
// may fill. Overflowing items are demoted below the cut line in their
// original order, never dropped.
func (c *Composer) applyDiversityCap(ranked []Recommendation, limit int) []Recommendation {
	capFraction := c.cfg.DiversityCap
	if capFraction <= 0 || capFraction >= 1 || len(ranked) == 0 {
		return ranked
	}
	maxPerSource := int(math.Floor(float64(limit)*capFraction + 1e-9))
	if maxPerSource < 1 {
		maxPerSource = 1
	}

	counts := make(map[Source]int)
	kept := make([]Recommendation, 0, len(ranked))
	var demoted []Recommendation
	for _, rec := range ranked {
		if len(kept) < limit && counts[rec.Source] >= maxPerSource {
			demoted = append(demoted, rec)
			continue
		}
		kept = append(kept, rec)
		counts[rec.Source]++
	}
	return append(kept, demoted...)
}

// backfill tops the feed up to limit with trending candidates when the
// personalized sources came up short. The fallback deliberately ignores
// the diversity cap: a short feed is worse than a trending-heavy one.
func (c *Composer) backfill(ranked []Recommendation, results []generatorResult, limit int) []Recommendation {
	if len(ranked) >= limit {
		return ranked
	}

	present := make(map[string]struct{}, len(ranked))
	for _, rec := range ranked {
		present[rec.ContentID] = struct{}{}
	}

	for _, result := range results {
		if result.source != SourceTrending || result.err != nil {
			continue
		}
		for _, rec := range result.recs {
			if len(ranked) >= limit {
				break
			}
			if _, ok := present[rec.ContentID]; ok {
				continue
			}
			rec.Score *= c.cfg.weight(result.source)
			ranked = append(ranked, rec)
			present[rec.ContentID] = struct{}{}
		}
	}
	return ranked
}
