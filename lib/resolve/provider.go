// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
	"github.com/baleproject/bale/lib/specifier"
)

// provider filters candidates and orders the resolver's work. It
// caches per-package candidate lists and dependency lookups for the
// lifetime of one resolution, which also keeps repeated index traffic
// out of the backtracking loop.
type provider struct {
	source        Source
	opts          Options
	userRequested map[string]int
	knownDepths   map[string]float64
	candidates    map[string][]Candidate
	dependencies  map[string][]requirement.Requirement
}

// findMatches returns the candidates admissible for a package under
// the given requirements and exclusions, newest first. When upgrades
// are not wanted for the package, its installed version is moved to
// the front so the search keeps it unless forced off.
func (p *provider) findMatches(ctx context.Context, name pkgname.Name, requirements []requirement.Requirement, incompatible []Candidate) ([]Candidate, error) {
	for _, req := range requirements {
		if req.Direct() {
			return p.directMatches(ctx, req, requirements, incompatible)
		}
	}

	all, err := p.allCandidates(ctx, name)
	if err != nil {
		return nil, err
	}

	admitPre := p.opts.Prereleases
	for _, req := range requirements {
		if req.Specifier.AdmitsPrereleases() {
			admitPre = true
			break
		}
	}
	matched := p.filter(all, requirements, incompatible, admitPre)
	if len(matched) == 0 && !admitPre {
		// A range satisfiable only by prereleases is not empty.
		matched = p.filter(all, requirements, incompatible, true)
	}

	if !p.eligibleForUpgrade(string(name)) {
		if installed, ok := p.opts.Installed[name]; ok {
			matched = moveVersionToFront(matched, installed)
		}
	}
	return matched, nil
}

// filter applies the admission rules: exclusions from backtracking,
// the upload-time cutoff, every requirement's specifiers, the
// package's constraint, and the yank rule (a yanked release is
// admitted only when a requirement pins that exact version).
func (p *provider) filter(all []Candidate, requirements []requirement.Requirement, incompatible []Candidate, prereleases bool) []Candidate {
	var matched []Candidate
	for _, candidate := range all {
		if excluded(candidate, incompatible) {
			continue
		}
		if p.opts.Cutoff.Excludes(candidate.File.UploadTime) {
			continue
		}
		admitted := true
		for _, req := range requirements {
			if !req.Specifier.ContainsWith(candidate.Version, prereleases) {
				admitted = false
				break
			}
		}
		if !admitted {
			continue
		}
		if constraint, ok := p.opts.Constraints[candidate.Name]; ok {
			pre := prereleases || constraint.Specifier.AdmitsPrereleases()
			if !constraint.Specifier.ContainsWith(candidate.Version, pre) {
				continue
			}
		}
		if candidate.File.Yanked && !pinnedExactly(requirements, candidate.Version) {
			continue
		}
		matched = append(matched, candidate)
	}
	return matched
}

// directMatches resolves a direct URL requirement to its single
// candidate. Several direct requirements for one package must agree
// on the URL, and specifier requirements still apply to the
// candidate's version.
func (p *provider) directMatches(ctx context.Context, direct requirement.Requirement, requirements []requirement.Requirement, incompatible []Candidate) ([]Candidate, error) {
	ds, ok := p.source.(DirectSource)
	if !ok {
		return nil, fmt.Errorf("resolve %s: source cannot serve direct URL requirement %s", direct.Name, direct.URL)
	}
	candidate, err := ds.Direct(ctx, direct)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", direct.Name, err)
	}
	if excluded(candidate, incompatible) {
		return nil, nil
	}
	for _, req := range requirements {
		if req.Direct() {
			if req.URL != direct.URL {
				return nil, nil
			}
			continue
		}
		if !req.Specifier.ContainsWith(candidate.Version, true) {
			return nil, nil
		}
	}
	return []Candidate{candidate}, nil
}

// allCandidates returns every release of the package, newest first,
// fetching from the source once per resolution.
func (p *provider) allCandidates(ctx context.Context, name pkgname.Name) ([]Candidate, error) {
	key := string(name)
	if cached, ok := p.candidates[key]; ok {
		return cached, nil
	}
	list, err := p.source.Candidates(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if c := pkgversion.Compare(list[i].Version, list[j].Version); c != 0 {
			return c > 0
		}
		return list[i].File.Filename < list[j].File.Filename
	})
	p.candidates[key] = list
	return list, nil
}

// dependenciesOf returns the candidate's requirements, cached per
// release and extras set.
func (p *provider) dependenciesOf(ctx context.Context, candidate Candidate) ([]requirement.Requirement, error) {
	key := string(candidate.Name) + "==" + candidate.Version.String() + "[" + strings.Join(candidate.Extras, ",") + "]"
	if deps, ok := p.dependencies[key]; ok {
		return deps, nil
	}
	deps, err := p.source.Dependencies(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %s: dependencies: %w", candidate.Name, candidate.Version.String(), err)
	}
	p.dependencies[key] = deps
	return deps, nil
}

// eligibleForUpgrade reports whether the package may move off its
// installed version: always under eager, only when user-requested
// under only-if-needed, never under to-satisfy-only.
func (p *provider) eligibleForUpgrade(name string) bool {
	switch p.opts.UpgradeStrategy {
	case UpgradeEager:
		return true
	case UpgradeOnlyIfNeeded:
		_, ok := p.userRequested[name]
		return ok
	default:
		return false
	}
}

// preference is the sort key for choosing which unsatisfied package
// to pin next. Lower sorts first: direct URL requirements, then exact
// pins, then current conflict causes, then packages closest to the
// roots, then root order, then requirements with operators, then the
// name for determinism.
type preference struct {
	direct bool
	pinned bool
	cause  bool
	depth  float64
	order  float64
	unfree bool
	name   string
}

func (a preference) less(b preference) bool {
	if a.direct != b.direct {
		return a.direct
	}
	if a.pinned != b.pinned {
		return a.pinned
	}
	if a.cause != b.cause {
		return a.cause
	}
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	if a.order != b.order {
		return a.order < b.order
	}
	if a.unfree != b.unfree {
		return a.unfree
	}
	return a.name < b.name
}

// preferenceFor computes the sort key from everything known about the
// package and caches the inferred depth for use by its dependents.
// User-requested packages sit at depth 1; others at the minimum
// parent depth plus one, or infinity when no parent depth is known.
func (p *provider) preferenceFor(name string, info []information, causes []information) preference {
	var direct, pinned, unfree bool
	for _, entry := range info {
		req := entry.requirement
		if req.Direct() {
			direct = true
			continue
		}
		if !req.Specifier.Empty() {
			unfree = true
		}
		if hasExactPin(req.Specifier) {
			pinned = true
		}
	}

	depth := math.Inf(1)
	order := math.Inf(1)
	if requested, ok := p.userRequested[name]; ok {
		order = float64(requested)
		depth = 1
	} else if len(info) > 0 {
		minParent := math.Inf(1)
		for _, entry := range info {
			parent := 0.0
			if entry.parent != "" {
				parent = p.knownDepth(entry.parent)
			}
			if parent < minParent {
				minParent = parent
			}
		}
		depth = minParent + 1
	}
	p.knownDepths[name] = depth

	return preference{
		direct: direct,
		pinned: pinned,
		cause:  isCause(name, causes),
		depth:  depth,
		order:  order,
		unfree: unfree,
		name:   name,
	}
}

func (p *provider) knownDepth(name string) float64 {
	if depth, ok := p.knownDepths[name]; ok {
		return depth
	}
	return math.Inf(1)
}

// isCause reports whether the package appears in the current conflict
// causes, as the conflicted requirement or as the package that
// introduced it.
func isCause(name string, causes []information) bool {
	for _, cause := range causes {
		if string(cause.requirement.Name) == name || cause.parent == name {
			return true
		}
	}
	return false
}

// hasExactPin reports whether the set contains a non-wildcard "==" or
// a "===" clause.
func hasExactPin(set specifier.Set) bool {
	for _, clause := range set.Clauses() {
		switch clause.Operator() {
		case specifier.OpArbitrary:
			return true
		case specifier.OpEqual:
			if !clause.IsWildcard() {
				return true
			}
		}
	}
	return false
}

// pinnedExactly reports whether some requirement pins the exact
// version.
func pinnedExactly(requirements []requirement.Requirement, v pkgversion.Version) bool {
	for _, req := range requirements {
		for _, clause := range req.Specifier.Clauses() {
			switch clause.Operator() {
			case specifier.OpArbitrary:
				if strings.EqualFold(clause.Version(), v.String()) {
					return true
				}
			case specifier.OpEqual:
				if clause.IsWildcard() {
					continue
				}
				if operand, err := pkgversion.Parse(clause.Version()); err == nil && pkgversion.Equal(operand, v) {
					return true
				}
			}
		}
	}
	return false
}

func excluded(candidate Candidate, incompatible []Candidate) bool {
	for _, other := range incompatible {
		if sameCandidate(candidate, other) {
			return true
		}
	}
	return false
}

// moveVersionToFront moves the candidate with the given version to
// the head of the list, keeping the relative order of the rest.
func moveVersionToFront(candidates []Candidate, version pkgversion.Version) []Candidate {
	for i, candidate := range candidates {
		if !pkgversion.Equal(candidate.Version, version) {
			continue
		}
		if i == 0 {
			return candidates
		}
		reordered := make([]Candidate, 0, len(candidates))
		reordered = append(reordered, candidate)
		reordered = append(reordered, candidates[:i]...)
		return append(reordered, candidates[i+1:]...)
	}
	return candidates
}
