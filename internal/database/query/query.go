// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

// Package query holds small SQL construction helpers shared by the
// behavior log queries. Values are always bound as parameters; only
// placeholder lists are interpolated.
package query

import "strings"

// Placeholders returns n comma-separated "?" markers for an IN clause.
// Panics if n < 1: an empty IN list is a caller bug, not a query.
func Placeholders(n int) string {
	if n < 1 {
		panic("query: placeholder count must be positive")
	}
	var b strings.Builder
	b.Grow(2*n - 1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	return b.String()
}

// StringArgs converts a string slice to the []any form QueryContext
// takes, with room reserved for extra trailing args.
func StringArgs(values []string, extra int) []any {
	args := make([]any, 0, len(values)+extra)
	for _, v := range values {
		args = append(args, v)
	}
	return args
}
