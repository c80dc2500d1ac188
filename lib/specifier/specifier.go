// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package specifier implements version range expressions: single
// clauses such as ">=1.4" or "==2.0.*", and comma-joined sets such as
// ">=1.4, <2.0, !=1.6.2". Matching follows the index version scheme,
// including the asymmetric boundary rules (">1.0" does not admit
// "1.0.post1", "<1.0" does not admit "1.0rc1") and the prerelease
// gate: a set admits prereleases only when one of its clauses names
// one.
package specifier

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/baleproject/bale/lib/pkgversion"
)

// Operator is a comparison operator in a specifier clause.
type Operator string

const (
	OpCompatible Operator = "~="
	OpEqual      Operator = "=="
	OpNotEqual   Operator = "!="
	OpLessEqual  Operator = "<="
	OpGreater    Operator = ">"
	OpGreatEqual Operator = ">="
	OpLess       Operator = "<"
	OpArbitrary  Operator = "==="
)

// operatorOrder lists operators longest-first so that prefix matching
// never splits "===" into "==" + "=".
var operatorOrder = []Operator{
	OpArbitrary, OpCompatible, OpEqual, OpNotEqual,
	OpLessEqual, OpGreatEqual, OpLess, OpGreater,
}

var wildcardPattern = regexp.MustCompile(`(?i)^v?(?:([0-9]+)!)?([0-9]+(?:\.[0-9]+)*)\.\*$`)

// Specifier is a single parsed clause.
type Specifier struct {
	op      Operator
	operand string
	// version is the parsed operand. It is unset for "===" clauses and
	// for wildcard clauses, which compare structurally instead.
	version  pkgversion.Version
	wildcard bool
	// prefixEpoch and prefix hold the wildcard prefix ("==2.1.*" keeps
	// epoch 0 and release prefix [2 1]).
	prefixEpoch int
	prefix      []int
}

// Parse parses one clause, e.g. ">= 1.4" or "==1.0.*". Whitespace
// around the operator and operand is ignored.
func Parse(raw string) (Specifier, error) {
	trimmed := strings.TrimSpace(raw)
	var op Operator
	for _, candidate := range operatorOrder {
		if strings.HasPrefix(trimmed, string(candidate)) {
			op = candidate
			break
		}
	}
	if op == "" {
		return Specifier{}, fmt.Errorf("specifier %q: missing comparison operator", raw)
	}
	operand := strings.TrimSpace(trimmed[len(op):])
	if operand == "" {
		return Specifier{}, fmt.Errorf("specifier %q: missing version", raw)
	}
	spec := Specifier{op: op, operand: operand}

	switch op {
	case OpArbitrary:
		if strings.ContainsAny(operand, " \t") {
			return Specifier{}, fmt.Errorf("specifier %q: version must not contain whitespace", raw)
		}
		return spec, nil
	case OpEqual, OpNotEqual:
		if match := wildcardPattern.FindStringSubmatch(operand); match != nil {
			spec.wildcard = true
			var err error
			if match[1] != "" {
				if spec.prefixEpoch, err = strconv.Atoi(match[1]); err != nil {
					return Specifier{}, fmt.Errorf("specifier %q: number %q out of range", raw, match[1])
				}
			}
			for _, part := range strings.Split(match[2], ".") {
				segment, err := strconv.Atoi(part)
				if err != nil {
					return Specifier{}, fmt.Errorf("specifier %q: number %q out of range", raw, part)
				}
				spec.prefix = append(spec.prefix, segment)
			}
			return spec, nil
		}
		version, err := pkgversion.Parse(operand)
		if err != nil {
			return Specifier{}, fmt.Errorf("specifier %q: %w", raw, err)
		}
		spec.version = version
		return spec, nil
	case OpCompatible:
		version, err := pkgversion.Parse(operand)
		if err != nil {
			return Specifier{}, fmt.Errorf("specifier %q: %w", raw, err)
		}
		if version.Local() != "" {
			return Specifier{}, fmt.Errorf("specifier %q: local version label not allowed with %s", raw, op)
		}
		if len(version.Release()) < 2 {
			return Specifier{}, fmt.Errorf("specifier %q: %s requires at least two release segments", raw, op)
		}
		spec.version = version
		return spec, nil
	default: // <, <=, >, >=
		version, err := pkgversion.Parse(operand)
		if err != nil {
			return Specifier{}, fmt.Errorf("specifier %q: %w", raw, err)
		}
		if version.Local() != "" {
			return Specifier{}, fmt.Errorf("specifier %q: local version label not allowed with %s", raw, op)
		}
		spec.version = version
		return spec, nil
	}
}

// Operator returns the clause operator.
func (s Specifier) Operator() Operator { return s.op }

// Version returns the operand as written.
func (s Specifier) Version() string { return s.operand }

// IsWildcard reports whether the clause compares against a release
// prefix ("==2.1.*") rather than a single version.
func (s Specifier) IsWildcard() bool { return s.wildcard }

func (s Specifier) String() string { return string(s.op) + s.operand }

// AdmitsPrereleases reports whether this clause opts the containing
// set into prerelease versions: an inclusive operator whose operand is
// itself a prerelease.
func (s Specifier) AdmitsPrereleases() bool {
	switch s.op {
	case OpEqual, OpGreatEqual, OpLessEqual, OpCompatible, OpArbitrary:
	default:
		return false
	}
	operand := s.operand
	if s.wildcard {
		operand = strings.TrimSuffix(operand, ".*")
	}
	version, err := pkgversion.Parse(operand)
	if err != nil {
		return false
	}
	return version.IsPrerelease()
}

// Match applies the pure operator semantics with no prerelease gate.
func (s Specifier) Match(v pkgversion.Version) bool {
	switch s.op {
	case OpArbitrary:
		return strings.EqualFold(v.String(), s.operand)
	case OpEqual:
		if s.wildcard {
			return s.matchPrefix(v)
		}
		candidate := v
		if s.version.Local() == "" {
			candidate = candidate.Public()
		}
		return pkgversion.Equal(candidate, s.version)
	case OpNotEqual:
		inverse := s
		inverse.op = OpEqual
		return !inverse.Match(v)
	case OpCompatible:
		if pkgversion.Compare(v.Public(), s.version) < 0 {
			return false
		}
		prefix := s.version.Release()
		return matchReleasePrefix(v, s.version.Epoch(), prefix[:len(prefix)-1])
	case OpLessEqual:
		return pkgversion.Compare(v.Public(), s.version) <= 0
	case OpGreatEqual:
		return pkgversion.Compare(v.Public(), s.version) >= 0
	case OpLess:
		if pkgversion.Compare(v, s.version) >= 0 {
			return false
		}
		// An exclusive upper bound does not admit prereleases of the
		// boundary itself unless the boundary is one.
		if !s.version.IsPrerelease() && v.IsPrerelease() &&
			pkgversion.Equal(v.BaseVersion(), s.version.BaseVersion()) {
			return false
		}
		return true
	case OpGreater:
		if pkgversion.Compare(v, s.version) <= 0 {
			return false
		}
		// An exclusive lower bound does not admit post releases or
		// local variants of the boundary itself.
		if !s.version.IsPostrelease() && v.IsPostrelease() &&
			pkgversion.Equal(v.BaseVersion(), s.version.BaseVersion()) {
			return false
		}
		if v.Local() != "" && pkgversion.Equal(v.BaseVersion(), s.version.BaseVersion()) {
			return false
		}
		return true
	}
	return false
}

func (s Specifier) matchPrefix(v pkgversion.Version) bool {
	return matchReleasePrefix(v, s.prefixEpoch, s.prefix)
}

// matchReleasePrefix reports whether the candidate's epoch and release
// digits start with the given prefix, padding the candidate's release
// with zeros when it is shorter.
func matchReleasePrefix(v pkgversion.Version, epoch int, prefix []int) bool {
	if v.Epoch() != epoch {
		return false
	}
	release := v.Release()
	for i, want := range prefix {
		got := 0
		if i < len(release) {
			got = release[i]
		}
		if got != want {
			return false
		}
	}
	return true
}

// Set is a conjunction of clauses. The zero value matches every
// non-prerelease version.
type Set struct {
	specs []Specifier
}

// ParseSet parses a comma-separated clause list. Empty input yields
// the empty set. Blank entries between commas are rejected.
func ParseSet(raw string) (Set, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Set{}, nil
	}
	var set Set
	for _, part := range strings.Split(trimmed, ",") {
		spec, err := Parse(part)
		if err != nil {
			return Set{}, err
		}
		set.specs = append(set.specs, spec)
	}
	return set, nil
}

// MustParseSet is ParseSet for trusted literals; it panics on error.
func MustParseSet(raw string) Set {
	set, err := ParseSet(raw)
	if err != nil {
		panic(err)
	}
	return set
}

// Empty reports whether the set has no clauses.
func (s Set) Empty() bool { return len(s.specs) == 0 }

// Len returns the number of clauses.
func (s Set) Len() int { return len(s.specs) }

// Clauses returns a copy of the clauses.
func (s Set) Clauses() []Specifier {
	out := make([]Specifier, len(s.specs))
	copy(out, s.specs)
	return out
}

// String renders the clauses sorted and comma-joined, so that equal
// sets render identically regardless of construction order.
func (s Set) String() string {
	parts := make([]string, len(s.specs))
	for i, spec := range s.specs {
		parts[i] = spec.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// Operators returns the operators present, in clause order.
func (s Set) Operators() []Operator {
	ops := make([]Operator, len(s.specs))
	for i, spec := range s.specs {
		ops[i] = spec.op
	}
	return ops
}

// AdmitsPrereleases reports whether any clause opts into prereleases.
func (s Set) AdmitsPrereleases() bool {
	for _, spec := range s.specs {
		if spec.AdmitsPrereleases() {
			return true
		}
	}
	return false
}

// Contains applies the default prerelease policy: prerelease versions
// match only when the set opts in.
func (s Set) Contains(v pkgversion.Version) bool {
	return s.ContainsWith(v, s.AdmitsPrereleases())
}

// ContainsWith matches with an explicit prerelease policy.
func (s Set) ContainsWith(v pkgversion.Version, prereleases bool) bool {
	if v.IsPrerelease() && !prereleases {
		return false
	}
	for _, spec := range s.specs {
		if !spec.Match(v) {
			return false
		}
	}
	return true
}

// HasUpperBound reports whether any clause caps the range from above
// with an exclusive or inclusive less-than. Pin operators do not
// count; callers that care about pins check those separately.
func (s Set) HasUpperBound() bool {
	for _, spec := range s.specs {
		if spec.op == OpLess || spec.op == OpLessEqual {
			return true
		}
	}
	return false
}

// IsPinned reports whether the set pins an exact version: a single
// "==" (non-wildcard) or "===" clause.
func (s Set) IsPinned() bool {
	if len(s.specs) != 1 {
		return false
	}
	spec := s.specs[0]
	return (spec.op == OpEqual && !spec.wildcard) || spec.op == OpArbitrary
}

// PinnedVersion returns the pinned version when IsPinned and the
// operand parses; ok is false otherwise.
func (s Set) PinnedVersion() (pkgversion.Version, bool) {
	if !s.IsPinned() {
		return pkgversion.Version{}, false
	}
	version, err := pkgversion.Parse(s.specs[0].operand)
	if err != nil {
		return pkgversion.Version{}, false
	}
	return version, true
}

// And returns the conjunction of the two sets, dropping duplicate
// clauses.
func (s Set) And(other Set) Set {
	seen := make(map[string]bool, len(s.specs)+len(other.specs))
	var merged Set
	for _, spec := range append(s.Clauses(), other.specs...) {
		key := spec.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged.specs = append(merged.specs, spec)
	}
	return merged
}

// Filter returns the versions matching under the default policy. When
// nothing matches and the set did not opt into prereleases, it retries
// admitting them, so that a range satisfiable only by prereleases is
// not reported empty.
func (s Set) Filter(versions []pkgversion.Version) []pkgversion.Version {
	matched := s.FilterWith(versions, s.AdmitsPrereleases())
	if len(matched) == 0 && !s.AdmitsPrereleases() {
		return s.FilterWith(versions, true)
	}
	return matched
}

// FilterWith returns the versions matching under an explicit policy,
// with no fallback.
func (s Set) FilterWith(versions []pkgversion.Version, prereleases bool) []pkgversion.Version {
	var matched []pkgversion.Version
	for _, v := range versions {
		if s.ContainsWith(v, prereleases) {
			matched = append(matched, v)
		}
	}
	return matched
}
