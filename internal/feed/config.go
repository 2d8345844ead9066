// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package feed

import (
	"fmt"
	"time"
)

// Config holds composer settings.
type Config struct {
	// GeneratorTimeout bounds each generator's run. A generator that
	// misses the deadline contributes nothing to that feed.
	GeneratorTimeout time.Duration

	// DiversityCap is the max fraction of the final feed one source may
	// occupy. 0 disables the cap.
	DiversityCap float64

	// DefaultLimit is the feed size when the caller passes limit <= 0.
	DefaultLimit int

	// MaxLimit caps caller-requested feed sizes.
	MaxLimit int

	// Weights are per-source score multipliers applied before merging,
	// letting operators bias the blend without touching generators.
	Weights map[Source]float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		GeneratorTimeout: 2 * time.Second,
		DiversityCap:     0.4,
		DefaultLimit:     20,
		MaxLimit:         100,
		Weights: map[Source]float64{
			SourceContentBased:  1.0,
			SourceCollaborative: 1.0,
			SourceTrending:      0.8,
		},
	}
}

// Validate checks composer configuration.
func (c *Config) Validate() error {
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("generator timeout must be positive, got %s", c.GeneratorTimeout)
	}
	if c.DiversityCap < 0 || c.DiversityCap > 1 {
		return fmt.Errorf("diversity cap %f outside [0,1]", c.DiversityCap)
	}
	if c.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be at least 1, got %d", c.DefaultLimit)
	}
	if c.MaxLimit < c.DefaultLimit {
		return fmt.Errorf("max limit %d below default limit %d", c.MaxLimit, c.DefaultLimit)
	}
	for source, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %s is negative", source)
		}
	}
	return nil
}

// weight returns the multiplier for a source, defaulting to 1.
func (c *Config) weight(source Source) float64 {
	if w, ok := c.Weights[source]; ok {
		return w
	}
	return 1.0
}
