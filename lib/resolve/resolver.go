// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/requirement"
)

// information records one requirement on a package and the package
// that introduced it ("" for roots).
type information struct {
	requirement requirement.Requirement
	parent      string
}

// criterion aggregates what is known about one package: the
// admissible candidates (newest first), the requirements collected so
// far, and candidates ruled out by backtracking.
type criterion struct {
	candidates        []Candidate
	information       []information
	incompatibilities []Candidate
}

func (c criterion) requirements() []requirement.Requirement {
	reqs := make([]requirement.Requirement, len(c.information))
	for i, entry := range c.information {
		reqs[i] = entry.requirement
	}
	return reqs
}

// pin is one package assignment, in resolution order.
type pin struct {
	name      string
	candidate Candidate
}

// state is one node in the backtracking stack. Pushing copies the
// maps and the pin list; criterion slices are replaced, never mutated
// in place, so copies sharing backing arrays stay consistent.
type state struct {
	pins     []pin
	criteria map[string]criterion
	extras   map[string][]string
}

func (s *state) clone() state {
	criteria := make(map[string]criterion, len(s.criteria))
	for name, crit := range s.criteria {
		criteria[name] = crit
	}
	extras := make(map[string][]string, len(s.extras))
	for name, list := range s.extras {
		extras[name] = list
	}
	pins := make([]pin, len(s.pins))
	copy(pins, s.pins)
	return state{pins: pins, criteria: criteria, extras: extras}
}

func (s *state) pinned(name string) (Candidate, bool) {
	for i := len(s.pins) - 1; i >= 0; i-- {
		if s.pins[i].name == name {
			return s.pins[i].candidate, true
		}
	}
	return Candidate{}, false
}

// removePin drops an existing pin of the package so a replacement can
// be appended as the most recent assignment.
func (s *state) removePin(name string) {
	for i, p := range s.pins {
		if p.name == name {
			s.pins = append(s.pins[:i], s.pins[i+1:]...)
			return
		}
	}
}

type resolver struct {
	provider *provider
	opts     Options
	logger   *slog.Logger
	states   []state
	causes   []information
}

func (r *resolver) top() *state { return &r.states[len(r.states)-1] }

func (r *resolver) resolve(ctx context.Context, roots []requirement.Requirement) (Resolution, error) {
	base := state{criteria: map[string]criterion{}, extras: map[string][]string{}}
	r.states = []state{base}
	for _, root := range roots {
		merged, ok, err := r.merge(ctx, r.top(), root, "")
		if err != nil {
			return Resolution{}, err
		}
		if !ok {
			return Resolution{}, &ConflictError{Causes: toCauses(merged.information)}
		}
	}

	for rounds := 1; rounds <= r.opts.MaxRounds; rounds++ {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		unsatisfied := r.unsatisfied()
		if len(unsatisfied) == 0 {
			return r.resolution(rounds - 1), nil
		}
		name := r.mostPreferred(unsatisfied)
		causes, err := r.attemptToPin(ctx, name)
		if err != nil {
			return Resolution{}, err
		}
		if len(causes) == 0 {
			continue
		}
		r.causes = causes
		r.logger.Debug("resolution conflict", "package", name, "causes", len(causes))
		recovered, err := r.backjump(ctx, causes)
		if err != nil {
			return Resolution{}, err
		}
		if !recovered {
			return Resolution{}, &ConflictError{Causes: toCauses(causes)}
		}
	}
	return Resolution{}, &TooDeepError{Rounds: r.opts.MaxRounds}
}

// merge folds one requirement into the state's criterion for its
// package, recording requested extras and recomputing the candidate
// list. When the combined requirements admit no candidate, the
// criterion is left unchanged and merge reports ok false with the
// conflicted criterion.
func (r *resolver) merge(ctx context.Context, st *state, req requirement.Requirement, parent string) (criterion, bool, error) {
	name := string(req.Name)
	current := st.criteria[name]

	info := make([]information, 0, len(current.information)+1)
	info = append(info, current.information...)
	info = append(info, information{requirement: req, parent: parent})
	merged := criterion{information: info, incompatibilities: current.incompatibilities}

	if len(req.Extras) > 0 {
		st.extras[name] = unionExtras(st.extras[name], req.Extras)
	}

	matches, err := r.provider.findMatches(ctx, req.Name, merged.requirements(), merged.incompatibilities)
	if err != nil {
		return criterion{}, false, err
	}
	if len(matches) == 0 {
		return merged, false, nil
	}
	merged.candidates = matches
	st.criteria[name] = merged
	return merged, true, nil
}

// unsatisfied returns the packages whose criteria the current pins do
// not satisfy, sorted for determinism.
func (r *resolver) unsatisfied() []string {
	st := r.top()
	var names []string
	for name, crit := range st.criteria {
		candidate, ok := st.pinned(name)
		if !ok || !satisfies(st, name, crit, candidate) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// satisfies reports whether the pinned candidate still meets every
// requirement and covers every requested extra. Specifier checks at
// this stage admit prereleases: admission policy was applied when the
// candidate list was built.
func satisfies(st *state, name string, crit criterion, candidate Candidate) bool {
	for _, entry := range crit.information {
		req := entry.requirement
		if req.Direct() {
			if candidate.File.URL != req.URL {
				return false
			}
			continue
		}
		if !req.Specifier.ContainsWith(candidate.Version, true) {
			return false
		}
	}
	return coversExtras(candidate.Extras, st.extras[name])
}

func (r *resolver) mostPreferred(unsatisfied []string) string {
	st := r.top()
	best := unsatisfied[0]
	bestPref := r.provider.preferenceFor(best, st.criteria[best].information, r.causes)
	for _, name := range unsatisfied[1:] {
		pref := r.provider.preferenceFor(name, st.criteria[name].information, r.causes)
		if pref.less(bestPref) {
			best, bestPref = name, pref
		}
	}
	return best
}

// attemptToPin tries each admissible candidate for the package until
// one's dependencies merge cleanly, then pushes the resulting state.
// When no candidate can be pinned it returns the conflict information
// collected from the failed attempts.
func (r *resolver) attemptToPin(ctx context.Context, name string) ([]information, error) {
	crit := r.top().criteria[name]
	var causes []information
	for _, candidate := range crit.candidates {
		next := r.top().clone()
		candidate.Extras = slices.Clone(next.extras[name])
		deps, err := r.provider.dependenciesOf(ctx, candidate)
		if err != nil {
			return nil, err
		}
		candidate.Dependencies = deps

		conflicted := false
		for _, dep := range deps {
			merged, ok, err := r.merge(ctx, &next, dep, name)
			if err != nil {
				return nil, err
			}
			if !ok {
				causes = append(causes, merged.information...)
				conflicted = true
				break
			}
		}
		if conflicted {
			continue
		}

		next.removePin(name)
		next.pins = append(next.pins, pin{name: name, candidate: candidate})
		r.states = append(r.states, next)
		r.logger.Debug("pinned", "package", name, "version", candidate.Version.String())
		return nil, nil
	}
	return causes, nil
}

// backjump unwinds pins until ruling one out leaves an alternative
// candidate, then resumes from the unwound state. Pinned packages
// whose conflict causes carry an upper bound ("<", "<=") are unpinned
// first; after those, the unwind blames pins related to the conflict
// and skips unrelated ones. It reports false when the stack is
// exhausted.
func (r *resolver) backjump(ctx context.Context, causes []information) (bool, error) {
	names := causeNames(causes)
	preferred := r.upperBoundedCauses(causes)

	for len(r.states) > 1 {
		popped := r.states[len(r.states)-1]
		r.states = r.states[:len(r.states)-1]
		if len(popped.pins) == 0 {
			continue
		}
		last := popped.pins[len(popped.pins)-1]
		if len(preferred) > 0 {
			if !preferred[last.name] {
				continue
			}
			delete(preferred, last.name)
		} else if !relatedToConflict(last, names) {
			continue
		}

		rest := r.top()
		crit := rest.criteria[last.name]
		crit.incompatibilities = appendCandidate(crit.incompatibilities, last.candidate)
		matches, err := r.provider.findMatches(ctx, pkgname.Name(last.name), crit.requirements(), crit.incompatibilities)
		if err != nil {
			return false, err
		}
		if len(matches) == 0 {
			continue
		}
		crit.candidates = matches
		rest.criteria[last.name] = crit
		r.logger.Debug("backtracked", "package", last.name, "unpinned", last.candidate.Version.String())
		return true, nil
	}
	return false, nil
}

// upperBoundedCauses returns the currently pinned packages among the
// conflict causes whose requirements cap the version from above.
func (r *resolver) upperBoundedCauses(causes []information) map[string]bool {
	bounded := make(map[string]bool)
	for _, cause := range causes {
		if cause.requirement.Specifier.HasUpperBound() {
			bounded[string(cause.requirement.Name)] = true
		}
	}
	if len(bounded) == 0 {
		return nil
	}
	pinned := make(map[string]bool)
	for _, p := range r.top().pins {
		if bounded[p.name] {
			pinned[p.name] = true
		}
	}
	return pinned
}

// causeNames collects the packages involved in the conflict: the
// conflicted requirements and the packages that introduced them.
func causeNames(causes []information) map[string]bool {
	names := make(map[string]bool, len(causes)*2)
	for _, cause := range causes {
		names[string(cause.requirement.Name)] = true
		if cause.parent != "" {
			names[cause.parent] = true
		}
	}
	return names
}

// relatedToConflict reports whether the pin participates in the
// conflict: it is one of the conflicted packages or depends on one.
func relatedToConflict(last pin, names map[string]bool) bool {
	if names[last.name] {
		return true
	}
	for _, dep := range last.candidate.Dependencies {
		if names[string(dep.Name)] {
			return true
		}
	}
	return false
}

func (r *resolver) resolution(rounds int) Resolution {
	st := r.top()
	pins := make(map[pkgname.Name]Candidate, len(st.pins))
	for _, p := range st.pins {
		pins[pkgname.Name(p.name)] = p.candidate
	}
	return Resolution{Pins: pins, Rounds: rounds}
}

// appendCandidate returns a new slice; incompatibility lists are
// shared across stacked states and must not grow in place.
func appendCandidate(list []Candidate, candidate Candidate) []Candidate {
	out := make([]Candidate, 0, len(list)+1)
	out = append(out, list...)
	return append(out, candidate)
}

func unionExtras(have, add []string) []string {
	merged := slices.Clone(have)
	for _, extra := range add {
		if !slices.Contains(merged, extra) {
			merged = append(merged, extra)
		}
	}
	sort.Strings(merged)
	return merged
}

func coversExtras(have, want []string) bool {
	for _, extra := range want {
		if !slices.Contains(have, extra) {
			return false
		}
	}
	return true
}
