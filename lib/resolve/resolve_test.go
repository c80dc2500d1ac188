// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
	"github.com/baleproject/bale/lib/specifier"
)

func mustSet(raw string) specifier.Set { return specifier.MustParseSet(raw) }

// fakeRelease is one release in a fakeSource. Dependency lines use
// the requirement syntax; extraDeps adds lines gated on an extra.
type fakeRelease struct {
	version   string
	deps      []string
	extraDeps map[string][]string
	yanked    bool
	uploaded  string
}

type fakeSource struct {
	releases map[pkgname.Name][]fakeRelease
}

func (f *fakeSource) Candidates(ctx context.Context, name pkgname.Name) ([]Candidate, error) {
	var out []Candidate
	for _, rel := range f.releases[name] {
		candidate := Candidate{
			Name:    name,
			Version: pkgversion.MustParse(rel.version),
			File: pkgindex.File{
				Filename: fmt.Sprintf("%s-%s.tar.gz", name, rel.version),
				Kind:     pkgindex.KindSdist,
				Yanked:   rel.yanked,
			},
		}
		if rel.uploaded != "" {
			uploaded, err := time.Parse(time.RFC3339, rel.uploaded)
			if err != nil {
				return nil, err
			}
			candidate.File.UploadTime = uploaded
		}
		out = append(out, candidate)
	}
	return out, nil
}

func (f *fakeSource) Dependencies(ctx context.Context, candidate Candidate) ([]requirement.Requirement, error) {
	for _, rel := range f.releases[candidate.Name] {
		if !pkgversion.Equal(pkgversion.MustParse(rel.version), candidate.Version) {
			continue
		}
		lines := slices.Clone(rel.deps)
		for _, extra := range candidate.Extras {
			lines = append(lines, rel.extraDeps[extra]...)
		}
		deps := make([]requirement.Requirement, len(lines))
		for i, line := range lines {
			deps[i] = requirement.MustParse(line)
		}
		return deps, nil
	}
	return nil, fmt.Errorf("unknown release %s %s", candidate.Name, candidate.Version.String())
}

// directFakeSource additionally serves direct URL requirements from a
// URL-to-version map.
type directFakeSource struct {
	fakeSource
	urls map[string]string
}

func (f *directFakeSource) Direct(ctx context.Context, req requirement.Requirement) (Candidate, error) {
	version, ok := f.urls[req.URL]
	if !ok {
		return Candidate{}, fmt.Errorf("no archive at %s", req.URL)
	}
	return Candidate{
		Name:    req.Name,
		Version: pkgversion.MustParse(version),
		File:    pkgindex.File{URL: req.URL},
	}, nil
}

func roots(lines ...string) []requirement.Requirement {
	reqs := make([]requirement.Requirement, len(lines))
	for i, line := range lines {
		reqs[i] = requirement.MustParse(line)
	}
	return reqs
}

func checkPins(t *testing.T, res Resolution, want map[string]string) {
	t.Helper()
	if len(res.Pins) != len(want) {
		t.Errorf("pinned %d packages, want %d", len(res.Pins), len(want))
	}
	for name, version := range want {
		candidate, ok := res.Pins[pkgname.Name(name)]
		if !ok {
			t.Errorf("package %s not pinned", name)
			continue
		}
		if got := candidate.Version.String(); got != version {
			t.Errorf("%s pinned at %s, want %s", name, got, version)
		}
	}
}

func TestResolveSimpleGraph(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"app": {
			{version: "2.0", deps: []string{"lib>=1.0"}},
			{version: "1.0"},
		},
		"lib": {{version: "1.0"}, {version: "1.5"}},
	}}
	res, err := Resolve(context.Background(), source, roots("app"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checkPins(t, res, map[string]string{"app": "2.0", "lib": "1.5"})
	if res.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", res.Rounds)
	}
	app := res.Pins["app"]
	if len(app.Dependencies) != 1 || app.Dependencies[0].String() != "lib>=1.0" {
		t.Errorf("app dependencies = %v", app.Dependencies)
	}
}

func TestResolvePrefersNewest(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {{version: "1.0"}, {version: "2.0"}, {version: "1.5"}},
	}}
	res, err := Resolve(context.Background(), source, roots("pkg"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checkPins(t, res, map[string]string{"pkg": "2.0"})
}

func TestResolveEmptyRoots(t *testing.T) {
	t.Parallel()
	res, err := Resolve(context.Background(), &fakeSource{}, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Pins) != 0 || res.Rounds != 0 {
		t.Errorf("Resolution = %+v, want empty", res)
	}
}

func TestResolveFallsBackAcrossCandidates(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"web":   {{version: "1.0", deps: []string{"core>=2", "zauth"}}},
		"core":  {{version: "1.0"}, {version: "2.0"}},
		"zauth": {{version: "1.0", deps: []string{"core<2"}}, {version: "0.9", deps: []string{"core<3"}}},
	}}
	res, err := Resolve(context.Background(), source, roots("web"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checkPins(t, res, map[string]string{"web": "1.0", "core": "2.0", "zauth": "0.9"})
	if res.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", res.Rounds)
	}
}

func TestResolveBackjumpsToParent(t *testing.T) {
	t.Parallel()
	// app 1.0 caps nothing itself, but its libd>=2 floor contradicts
	// consumer's libd<2 ceiling, so the resolver must retreat all the
	// way to app 0.9. The extra package reachable only from app 1.0
	// must not appear in the result.
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"app": {
			{version: "1.0", deps: []string{"libd>=2", "extra", "consumer"}},
			{version: "0.9", deps: []string{"libd>=1", "consumer"}},
		},
		"libd":     {{version: "1.0"}, {version: "2.0"}},
		"extra":    {{version: "1.0"}},
		"consumer": {{version: "1.0", deps: []string{"libd<2"}}},
	}}
	res, err := Resolve(context.Background(), source, roots("app"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checkPins(t, res, map[string]string{"app": "0.9", "libd": "1.0", "consumer": "1.0"})
	if _, ok := res.Pins["extra"]; ok {
		t.Error("extra is not reachable from app 0.9 and must not be pinned")
	}
}

func TestResolveImpossible(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"web":   {{version: "1.0", deps: []string{"core>=2", "zauth"}}},
		"core":  {{version: "1.0"}, {version: "2.0"}},
		"zauth": {{version: "1.0", deps: []string{"core<2"}}},
	}}
	_, err := Resolve(context.Background(), source, roots("web"), Options{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Resolve error = %v, want *ConflictError", err)
	}
	if !strings.Contains(conflict.Error(), "core") {
		t.Errorf("conflict does not name the contested package: %v", conflict)
	}
}

func TestResolveUnknownPackage(t *testing.T) {
	t.Parallel()
	_, err := Resolve(context.Background(), &fakeSource{}, roots("ghost"), Options{})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Resolve error = %v, want *ConflictError", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error does not name the package: %v", err)
	}
}

func TestResolveCutoff(t *testing.T) {
	t.Parallel()
	cutoff := Cutoff{Instant: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}

	t.Run("excludes newer uploads", func(t *testing.T) {
		t.Parallel()
		source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
			"pkg": {
				{version: "1.0", uploaded: "2020-03-01T00:00:00Z"},
				{version: "2.0", uploaded: "2024-03-01T00:00:00Z"},
			},
		}}
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{Cutoff: cutoff})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "1.0"})
	})

	t.Run("missing upload time passes", func(t *testing.T) {
		t.Parallel()
		source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
			"pkg": {
				{version: "1.0", uploaded: "2020-03-01T00:00:00Z"},
				{version: "2.0", uploaded: "2024-03-01T00:00:00Z"},
				{version: "3.0"},
			},
		}}
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{Cutoff: cutoff})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "3.0"})
	})

	t.Run("no cutoff", func(t *testing.T) {
		t.Parallel()
		source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
			"pkg": {
				{version: "1.0", uploaded: "2020-03-01T00:00:00Z"},
				{version: "2.0", uploaded: "2024-03-01T00:00:00Z"},
			},
		}}
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "2.0"})
	})
}

func TestResolveYanked(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {
			{version: "1.0"},
			{version: "2.0", yanked: true},
		},
	}}

	t.Run("skipped by default", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "1.0"})
	})

	t.Run("admitted under exact pin", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pkg==2.0"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "2.0"})
	})

	t.Run("not admitted under a range", func(t *testing.T) {
		t.Parallel()
		_, err := Resolve(context.Background(), source, roots("pkg>=2.0"), Options{})
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("Resolve error = %v, want *ConflictError", err)
		}
	})
}

func TestResolvePrereleases(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {{version: "1.0"}, {version: "2.0rc1"}},
		"pre": {{version: "1.0rc1"}},
	}}

	t.Run("excluded by default", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "1.0"})
	})

	t.Run("admitted by option", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pkg"), Options{Prereleases: true})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "2.0rc1"})
	})

	t.Run("admitted by clause", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pkg>=2.0rc1"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "2.0rc1"})
	})

	t.Run("fallback when only prereleases exist", func(t *testing.T) {
		t.Parallel()
		res, err := Resolve(context.Background(), source, roots("pre"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pre": "1.0rc1"})
	})
}

func TestResolveUpgradeStrategies(t *testing.T) {
	t.Parallel()
	releases := map[pkgname.Name][]fakeRelease{
		"pkg": {{version: "1.0"}, {version: "2.0"}},
		"app": {{version: "1.0", deps: []string{"pkg"}}},
	}
	installed := map[pkgname.Name]pkgversion.Version{
		"pkg": pkgversion.MustParse("1.0"),
	}
	cases := []struct {
		name  string
		roots []requirement.Requirement
		opts  Options
		want  map[string]string
	}{
		{
			name:  "to-satisfy-only keeps installed",
			roots: roots("pkg"),
			opts:  Options{Installed: installed},
			want:  map[string]string{"pkg": "1.0"},
		},
		{
			name:  "eager upgrades",
			roots: roots("pkg"),
			opts:  Options{Installed: installed, UpgradeStrategy: UpgradeEager},
			want:  map[string]string{"pkg": "2.0"},
		},
		{
			name:  "only-if-needed upgrades the requested package",
			roots: roots("pkg"),
			opts:  Options{Installed: installed, UpgradeStrategy: UpgradeOnlyIfNeeded},
			want:  map[string]string{"pkg": "2.0"},
		},
		{
			name:  "only-if-needed keeps unrequested dependencies",
			roots: roots("app"),
			opts:  Options{Installed: installed, UpgradeStrategy: UpgradeOnlyIfNeeded},
			want:  map[string]string{"app": "1.0", "pkg": "1.0"},
		},
		{
			name:  "installed version losing admissibility upgrades",
			roots: roots("pkg>=2"),
			opts:  Options{Installed: installed},
			want:  map[string]string{"pkg": "2.0"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			source := &fakeSource{releases: releases}
			res, err := Resolve(context.Background(), source, tc.roots, tc.opts)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			checkPins(t, res, tc.want)
		})
	}
}

func TestResolveConstraints(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {{version: "1.0"}, {version: "2.0"}},
	}}

	t.Run("restricts versions", func(t *testing.T) {
		t.Parallel()
		opts := Options{Constraints: map[pkgname.Name]Constraint{
			"pkg": {Specifier: mustSet("<2")},
		}}
		res, err := Resolve(context.Background(), source, roots("pkg"), opts)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "1.0"})
	})

	t.Run("never introduces packages", func(t *testing.T) {
		t.Parallel()
		opts := Options{Constraints: map[pkgname.Name]Constraint{
			"pkg":   {Specifier: mustSet("<2")},
			"other": {Specifier: mustSet("==9.9")},
		}}
		res, err := Resolve(context.Background(), source, roots("pkg"), opts)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if _, ok := res.Pins["other"]; ok {
			t.Error("constraint introduced a package nothing requires")
		}
	})

	t.Run("unsatisfiable constraint conflicts", func(t *testing.T) {
		t.Parallel()
		opts := Options{Constraints: map[pkgname.Name]Constraint{
			"pkg": {Specifier: mustSet("<1")},
		}}
		_, err := Resolve(context.Background(), source, roots("pkg"), opts)
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("Resolve error = %v, want *ConflictError", err)
		}
	})
}

func TestResolveExtras(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {{
			version: "1.0",
			deps:    []string{"base"},
			extraDeps: map[string][]string{
				"socks": {"socksdep"},
				"tls":   {"tlsdep"},
			},
		}},
		"app":      {{version: "1.0", deps: []string{"pkg[tls]"}}},
		"base":     {{version: "1.0"}},
		"socksdep": {{version: "1.0"}},
		"tlsdep":   {{version: "1.0"}},
	}}
	res, err := Resolve(context.Background(), source, roots("pkg[socks]", "app"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	checkPins(t, res, map[string]string{
		"pkg": "1.0", "app": "1.0", "base": "1.0",
		"socksdep": "1.0", "tlsdep": "1.0",
	})
	pkg := res.Pins["pkg"]
	if !slices.Equal(pkg.Extras, []string{"socks", "tls"}) {
		t.Errorf("pkg extras = %v, want the union of requested extras", pkg.Extras)
	}
}

func TestResolveDirect(t *testing.T) {
	t.Parallel()
	url := "https://example.com/pkg-9.9.tar.gz"

	t.Run("pins the URL candidate", func(t *testing.T) {
		t.Parallel()
		source := &directFakeSource{urls: map[string]string{url: "9.9"}}
		res, err := Resolve(context.Background(), source, roots("pkg @ "+url), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		checkPins(t, res, map[string]string{"pkg": "9.9"})
		if res.Pins["pkg"].File.URL != url {
			t.Errorf("pinned URL = %q, want %q", res.Pins["pkg"].File.URL, url)
		}
	})

	t.Run("plain sources reject URL requirements", func(t *testing.T) {
		t.Parallel()
		_, err := Resolve(context.Background(), &fakeSource{}, roots("pkg @ "+url), Options{})
		if err == nil || !strings.Contains(err.Error(), "direct URL") {
			t.Fatalf("Resolve error = %v, want direct URL rejection", err)
		}
	})
}

func TestResolveTooDeep(t *testing.T) {
	t.Parallel()
	if DefaultMaxRounds != 200000 {
		t.Errorf("DefaultMaxRounds = %d, want 200000", DefaultMaxRounds)
	}
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"a": {{version: "1.0", deps: []string{"b"}}},
		"b": {{version: "1.0", deps: []string{"c"}}},
		"c": {{version: "1.0", deps: []string{"d"}}},
		"d": {{version: "1.0"}},
	}}
	_, err := Resolve(context.Background(), source, roots("a"), Options{MaxRounds: 3})
	var tooDeep *TooDeepError
	if !errors.As(err, &tooDeep) {
		t.Fatalf("Resolve error = %v, want *TooDeepError", err)
	}
	if tooDeep.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", tooDeep.Rounds)
	}
}

func TestResolveDeterminism(t *testing.T) {
	t.Parallel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"web":   {{version: "1.0", deps: []string{"core>=2", "zauth", "logfmt"}}},
		"core":  {{version: "1.0"}, {version: "2.0"}, {version: "2.1"}},
		"zauth": {{version: "1.0", deps: []string{"core<2"}}, {version: "0.9", deps: []string{"core<3", "logfmt>=1"}}},
		"logfmt": {
			{version: "1.0"}, {version: "1.1"}, {version: "2.0rc1"},
		},
	}}
	first, err := Resolve(context.Background(), source, roots("web"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Resolve(context.Background(), source, roots("web"), Options{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if again.Rounds != first.Rounds {
			t.Fatalf("Rounds = %d, want %d", again.Rounds, first.Rounds)
		}
		for name, candidate := range first.Pins {
			other, ok := again.Pins[name]
			if !ok || !pkgversion.Equal(candidate.Version, other.Version) {
				t.Fatalf("pin %s differs between runs", name)
			}
		}
		if len(again.Pins) != len(first.Pins) {
			t.Fatalf("pin count differs between runs")
		}
	}
}

func TestResolveContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &fakeSource{releases: map[pkgname.Name][]fakeRelease{
		"pkg": {{version: "1.0"}},
	}}
	_, err := Resolve(ctx, source, roots("pkg"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve error = %v, want context.Canceled", err)
	}
}
