// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package feed

import "errors"

// Sentinel errors for the ranking pipeline. Callers classify failures
// with errors.Is; wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrUpstreamUnavailable indicates the behavior store (or another
	// hard dependency) could not be reached. Compose propagates it only
	// when every generator failed with it; otherwise the feed degrades.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPartialDegradation marks a feed served with one or more
	// generators missing. It is reported through logs and metrics, not
	// returned to callers: a degraded feed is still a valid feed.
	ErrPartialDegradation = errors.New("partial degradation")
)
