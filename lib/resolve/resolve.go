// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolve selects one version per package for a set of
// requirements by backtracking search. Each round pins the
// most-preferred unsatisfied package; when a pin's dependencies
// contradict what is already known, the resolver unwinds earlier pins
// until an alternative candidate exists, preferring to unpin packages
// whose conflicts carry upper-bound specifiers. Candidate metadata
// comes from a Source, typically backed by lib/pkgindex.
package resolve

import (
	"context"
	"log/slog"

	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
	"github.com/baleproject/bale/lib/specifier"
)

// Candidate is one installable release of a package. File identifies
// the archive the release would be fetched from. Extras carries the
// union of extras requested for the package; the resolver fills it
// before asking the Source for dependencies, and fills Dependencies
// when the candidate is considered for pinning.
type Candidate struct {
	Name         pkgname.Name
	Version      pkgversion.Version
	File         pkgindex.File
	Extras       []string
	Dependencies []requirement.Requirement
}

// Constraint restricts the versions a package may resolve to without
// introducing the package itself. A constraint on a package nothing
// requires is inert.
type Constraint struct {
	Specifier specifier.Set
}

// Source supplies candidate releases and their dependency metadata.
// Implementations must be deterministic: identical inputs yield
// identical results.
type Source interface {
	// Candidates returns every known release of the package, in any
	// order, with Dependencies left nil. An unknown package yields an
	// empty list, not an error.
	Candidates(ctx context.Context, name pkgname.Name) ([]Candidate, error)

	// Dependencies returns the requirements the candidate would
	// install, honoring candidate.Extras.
	Dependencies(ctx context.Context, candidate Candidate) ([]requirement.Requirement, error)
}

// DirectSource is implemented by sources that can materialize a
// candidate for a direct URL requirement. Resolving a direct
// requirement against a source without this method is an error.
type DirectSource interface {
	Direct(ctx context.Context, req requirement.Requirement) (Candidate, error)
}

// UpgradeStrategy controls whether packages with an installed version
// move to newer releases.
type UpgradeStrategy string

const (
	// UpgradeEager moves every package to the newest admissible
	// version.
	UpgradeEager UpgradeStrategy = "eager"

	// UpgradeOnlyIfNeeded upgrades the packages the user named;
	// everything else keeps its installed version while that version
	// still satisfies the requirements.
	UpgradeOnlyIfNeeded UpgradeStrategy = "only-if-needed"

	// UpgradeToSatisfyOnly keeps installed versions wherever they
	// satisfy the requirements. This is the default.
	UpgradeToSatisfyOnly UpgradeStrategy = "to-satisfy-only"
)

// DefaultMaxRounds bounds the resolution loop when Options.MaxRounds
// is zero.
const DefaultMaxRounds = 200000

// Options tune a resolution. The zero value resolves with defaults.
type Options struct {
	// MaxRounds bounds the number of pin and backtrack rounds. Zero
	// means DefaultMaxRounds. Exceeding the bound returns
	// *TooDeepError.
	MaxRounds int

	// Cutoff excludes candidates uploaded after a fixed instant.
	// Candidates without upload metadata are unaffected.
	Cutoff Cutoff

	// Constraints restrict versions per package.
	Constraints map[pkgname.Name]Constraint

	// UpgradeStrategy defaults to UpgradeToSatisfyOnly.
	UpgradeStrategy UpgradeStrategy

	// Prereleases admits prerelease versions for every package.
	// Without it, prereleases are admitted per package when a
	// requirement clause names one, or when nothing else matches.
	Prereleases bool

	// Installed maps packages to their currently pinned versions.
	Installed map[pkgname.Name]pkgversion.Version

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolution is a successful assignment of one candidate per package
// reachable from the roots. Rounds counts the pin and backtrack
// rounds the search took.
type Resolution struct {
	Pins   map[pkgname.Name]Candidate
	Rounds int
}

// Resolve assigns a candidate to every package reachable from the
// root requirements. It returns *ConflictError when no assignment
// satisfies the requirements and *TooDeepError when the search
// exceeds the round limit.
func Resolve(ctx context.Context, source Source, roots []requirement.Requirement, opts Options) (Resolution, error) {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.UpgradeStrategy == "" {
		opts.UpgradeStrategy = UpgradeToSatisfyOnly
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	userRequested := make(map[string]int, len(roots))
	for i, root := range roots {
		name := string(root.Name)
		if _, ok := userRequested[name]; !ok {
			userRequested[name] = i
		}
	}

	r := &resolver{
		provider: &provider{
			source:        source,
			opts:          opts,
			userRequested: userRequested,
			knownDepths:   make(map[string]float64),
			candidates:    make(map[string][]Candidate),
			dependencies:  make(map[string][]requirement.Requirement),
		},
		opts:   opts,
		logger: opts.Logger,
	}
	return r.resolve(ctx, roots)
}

// sameCandidate reports whether two candidates name the same release.
func sameCandidate(a, b Candidate) bool {
	return a.Name == b.Name && pkgversion.Equal(a.Version, b.Version)
}
