// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 M. Faulds (mfaulds)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mfaulds/feedrank

package query

import "testing"

func TestPlaceholders(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "?"},
		{2, "?,?"},
		{4, "?,?,?,?"},
	}
	for _, tc := range cases {
		if got := Placeholders(tc.n); got != tc.want {
			t.Errorf("Placeholders(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestPlaceholdersPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Placeholders(0) did not panic")
		}
	}()
	Placeholders(0)
}

func TestStringArgs(t *testing.T) {
	args := StringArgs([]string{"a", "b"}, 2)
	if len(args) != 2 || cap(args) != 4 {
		t.Errorf("len = %d cap = %d, want 2 and 4", len(args), cap(args))
	}
	if args[0] != "a" || args[1] != "b" {
		t.Errorf("args = %v", args)
	}
}
