// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
)

// IndexSource adapts a package index client into a resolver Source.
// It lists one candidate per release version, preferring the sdist
// when a version ships several archives, and reads dependency
// metadata from the per-version release document. An unknown package
// yields no candidates rather than an error, so a typo surfaces as an
// unsatisfiable requirement.
type IndexSource struct {
	client *pkgindex.Client
}

func NewIndexSource(client *pkgindex.Client) *IndexSource {
	return &IndexSource{client: client}
}

func (s *IndexSource) Candidates(ctx context.Context, name pkgname.Name) ([]Candidate, error) {
	project, err := s.client.Project(ctx, name)
	if pkgindex.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(project.Releases))
	for raw, files := range project.Releases {
		version, err := pkgversion.Parse(raw)
		if err != nil {
			continue
		}
		file, ok := pickFile(files)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Name: project.Name, Version: version, File: file})
	}
	return candidates, nil
}

func (s *IndexSource) Dependencies(ctx context.Context, candidate Candidate) ([]requirement.Requirement, error) {
	release, err := s.client.Release(ctx, candidate.Name, candidate.Version.String())
	if err != nil {
		return nil, err
	}
	deps := make([]requirement.Requirement, 0, len(release.Requires))
	for _, raw := range release.Requires {
		dep, keep, err := ParseDependency(raw, candidate.Extras)
		if err != nil {
			return nil, fmt.Errorf("%s %s: requires %q: %w", candidate.Name, candidate.Version.String(), raw, err)
		}
		if keep {
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

// pickFile chooses the archive to vendor for a release: the sdist
// when present, otherwise the first wheel.
func pickFile(files []pkgindex.File) (pkgindex.File, bool) {
	for _, file := range files {
		if file.Kind == pkgindex.KindSdist {
			return file, true
		}
	}
	for _, file := range files {
		if file.Kind == pkgindex.KindWheel {
			return file, true
		}
	}
	return pkgindex.File{}, false
}

// markerExtras matches the extra == "name" tests inside an
// environment marker.
var markerExtras = regexp.MustCompile(`extra\s*==\s*['"]([^'"]+)['"]`)

// ParseDependency parses one dependency entry from release metadata,
// such as `requests (>=2.16.0) ; extra == "socks"`. Entries gated on
// an extra are kept only when that extra was requested. Other
// environment markers are treated as satisfied: a vendored tree wants
// the cross-platform superset of dependencies.
func ParseDependency(raw string, extras []string) (requirement.Requirement, bool, error) {
	body, marker, _ := strings.Cut(raw, ";")
	if gates := markerExtras.FindAllStringSubmatch(marker, -1); len(gates) > 0 {
		wanted := false
		for _, gate := range gates {
			if slices.Contains(extras, string(pkgname.Canonicalize(gate[1]))) {
				wanted = true
				break
			}
		}
		if !wanted {
			return requirement.Requirement{}, false, nil
		}
	}
	req, err := requirement.Parse(body)
	if err != nil {
		return requirement.Requirement{}, false, err
	}
	return req, true, nil
}
