// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuzzy scores strings against a typed pattern using fzf's
// FuzzyMatchV2 algorithm. Matching is case-insensitive and rewards
// consecutive runs and word-boundary hits, so "plk" finds
// "pooling-leak" and "reqs" finds "requests". Used for bale search
// and for did-you-mean suggestions on unknown package names.
package fuzzy

import (
	"sort"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Result is the outcome of matching a pattern against one string.
type Result struct {
	// Score is fzf's match quality. Zero means no match; higher is
	// better. Scores are only comparable for the same pattern.
	Score int

	// Positions holds the rune indices of the matched characters in
	// the text, ascending. Empty when there is no match.
	Positions []int
}

// NewSlab allocates scratch space for the matcher. A slab is reused
// across Match calls to avoid per-call allocations when scoring many
// strings; it is not safe for concurrent use. The sizes are the ones
// fzf itself runs with.
func NewSlab() *util.Slab {
	return util.MakeSlab(100*1024, 2048)
}

// Match scores text against pattern. The pattern is lowercased and
// the algorithm ignores text case, so matching is case-insensitive on
// both sides. slab may be nil for one-off calls.
func Match(text string, pattern []rune, slab *util.Slab) Result {
	if len(pattern) == 0 {
		return Result{}
	}

	lowered := make([]rune, len(pattern))
	for i, r := range pattern {
		lowered[i] = unicode.ToLower(r)
	}

	chars := util.ToChars([]byte(text))
	match, positions := algo.FuzzyMatchV2(false, false, true, &chars, lowered, true, slab)
	if match.Score <= 0 {
		return Result{}
	}

	result := Result{Score: match.Score}
	if positions != nil {
		result.Positions = append(result.Positions, *positions...)
		// The backtrace emits positions end-to-start.
		sort.Ints(result.Positions)
	}
	return result
}

// Ranked is one item of a Rank result.
type Ranked struct {
	// Text is the matched item.
	Text string

	// Index is the item's position in the input slice.
	Index int

	Result
}

// Rank scores every item against pattern and returns the matches
// ordered best-first. Ties keep input order. A limit > 0 caps the
// result length. An empty pattern matches everything with zero score,
// preserving input order, so callers can treat "no filter" and
// "filter" uniformly.
func Rank(items []string, pattern string, limit int) []Ranked {
	runes := []rune(pattern)

	if len(runes) == 0 {
		ranked := make([]Ranked, 0, len(items))
		for i, item := range items {
			ranked = append(ranked, Ranked{Text: item, Index: i})
		}
		if limit > 0 && len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked
	}

	slab := NewSlab()
	var ranked []Ranked
	for i, item := range items {
		result := Match(item, runes, slab)
		if result.Score <= 0 {
			continue
		}
		ranked = append(ranked, Ranked{Text: item, Index: i, Result: result})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
