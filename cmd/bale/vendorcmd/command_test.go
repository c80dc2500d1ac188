// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/resolve"
	"github.com/baleproject/bale/lib/specifier"
)

// writeProject writes a minimal project: bale.yaml and a manifest with
// the given lines. It points BALE_CONFIG at the configuration so
// commands resolve it without an explicit --config flag.
func writeProject(t *testing.T, manifestLines string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bale.yaml")
	config := "project:\n  name: testproj\ncache:\n  dir: " + filepath.Join(dir, "cache") + "\n"
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vendor.txt"), []byte(manifestLines), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	t.Setenv("BALE_CONFIG", configPath)
	return dir
}

func TestSyncRejectsPositionalArgs(t *testing.T) {
	err := syncCommand().Run([]string{"extra"})
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Errorf("error = %v, want usage hint", err)
	}
}

func TestAddRejectsDirectURL(t *testing.T) {
	err := addCommand().Run([]string{"requests @ https://example.com/requests-2.31.0.tar.gz"})
	if err == nil || !strings.Contains(err.Error(), "cannot be vendored") {
		t.Errorf("error = %v, want direct URL rejection", err)
	}
}

func TestRemoveFromManifest(t *testing.T) {
	dir := writeProject(t, "requests==2.31.0\nchardet==5.2.0\n")

	// The lookup canonicalizes, so the capitalized spelling matches.
	if err := removeCommand().Run([]string{"Chardet"}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	m, err := manifest.Load(filepath.Join(dir, "vendor.txt"))
	if err != nil {
		t.Fatalf("reloading manifest: %v", err)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("manifest has %d entries, want 1", len(m.Entries))
	}
	if m.Entries[0].Requirement.Name != "requests" {
		t.Errorf("remaining entry = %s, want requests", m.Entries[0].Requirement.Name)
	}
}

func TestRemoveMissingPackage(t *testing.T) {
	writeProject(t, "requests==2.31.0\n")

	err := removeCommand().Run([]string{"urllib3"})
	if err == nil || !strings.Contains(err.Error(), "not in the manifest") {
		t.Errorf("error = %v, want not-in-manifest", err)
	}
}

func TestListReadsManifest(t *testing.T) {
	writeProject(t, "requests[socks]==2.31.0\n")

	if err := listCommand().Run(nil); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestUpdateRoots(t *testing.T) {
	m, err := manifest.Parse([]byte("requests[socks]==2.31.0\nurllib3==2.0.7\n"))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}

	t.Run("all entries when no names given", func(t *testing.T) {
		roots, err := updateRoots(m, nil)
		if err != nil {
			t.Fatalf("updateRoots: %v", err)
		}
		if len(roots) != 2 {
			t.Fatalf("got %d roots, want 2", len(roots))
		}
		if !roots[0].Specifier.Empty() {
			t.Errorf("root %s kept its pin %s", roots[0].Name, roots[0].Specifier.String())
		}
		if len(roots[0].Extras) != 1 || roots[0].Extras[0] != "socks" {
			t.Errorf("extras = %v, want [socks]", roots[0].Extras)
		}
	})

	t.Run("named entries only", func(t *testing.T) {
		roots, err := updateRoots(m, []string{"urllib3"})
		if err != nil {
			t.Fatalf("updateRoots: %v", err)
		}
		if len(roots) != 1 || roots[0].Name != "urllib3" {
			t.Fatalf("roots = %v, want just urllib3", roots)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := updateRoots(m, []string{"flask"})
		if err == nil || !strings.Contains(err.Error(), "not in the manifest") {
			t.Errorf("error = %v, want not-in-manifest", err)
		}
	})
}

func TestLoadConstraints(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "constraints.txt")
	content := "# pin down the resolver\nurllib3<2\nrequests>=2.25,<3\n\n"
	if err := os.WriteFile(first, []byte(content), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}

	constraints, err := loadConstraints([]string{first})
	if err != nil {
		t.Fatalf("loadConstraints: %v", err)
	}
	if len(constraints) != 2 {
		t.Fatalf("got %d constraints, want 2", len(constraints))
	}
	urllib := constraints[pkgname.Name("urllib3")]
	if urllib.Specifier.Contains(pkgversion.MustParse("2.0.1")) {
		t.Error("urllib3<2 admitted 2.0.1")
	}
	if !urllib.Specifier.Contains(pkgversion.MustParse("1.26.18")) {
		t.Error("urllib3<2 rejected 1.26.18")
	}
}

func TestLoadConstraintsMergesFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(first, []byte("urllib3<2\n"), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}
	if err := os.WriteFile(second, []byte("urllib3>=1.26\n"), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}

	constraints, err := loadConstraints([]string{first, second})
	if err != nil {
		t.Fatalf("loadConstraints: %v", err)
	}
	set := constraints[pkgname.Name("urllib3")].Specifier
	if !set.Contains(pkgversion.MustParse("1.26.18")) {
		t.Error("merged constraint rejected 1.26.18")
	}
	if set.Contains(pkgversion.MustParse("1.25")) {
		t.Error("merged constraint admitted 1.25 below the floor")
	}
	if set.Contains(pkgversion.MustParse("2.0.1")) {
		t.Error("merged constraint admitted 2.0.1 above the ceiling")
	}
}

func TestLoadConstraintsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.txt")
	if err := os.WriteFile(path, []byte("idna<4\n"), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}
	t.Setenv(constraintEnv, path)

	constraints, err := loadConstraints(nil)
	if err != nil {
		t.Fatalf("loadConstraints: %v", err)
	}
	if _, ok := constraints[pkgname.Name("idna")]; !ok {
		t.Error("constraint from BALE_CONSTRAINT missing")
	}
}

func TestLoadConstraintsRejectsExtrasAndURLs(t *testing.T) {
	dir := t.TempDir()

	withExtras := filepath.Join(dir, "extras.txt")
	if err := os.WriteFile(withExtras, []byte("requests[socks]<3\n"), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}
	if _, err := loadConstraints([]string{withExtras}); err == nil || !strings.Contains(err.Error(), "extras") {
		t.Errorf("error = %v, want extras rejection", err)
	}

	withURL := filepath.Join(dir, "url.txt")
	if err := os.WriteFile(withURL, []byte("requests @ https://example.com/r.tar.gz\n"), 0o644); err != nil {
		t.Fatalf("writing constraints: %v", err)
	}
	if _, err := loadConstraints([]string{withURL}); err == nil || !strings.Contains(err.Error(), "direct URL") {
		t.Errorf("error = %v, want URL rejection", err)
	}
}

func TestApplyPins(t *testing.T) {
	m, err := manifest.Parse([]byte("requests==2.31.0\nurllib3==2.0.7\n"))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	resolution := resolve.Resolution{Pins: map[pkgname.Name]resolve.Candidate{
		"requests": {Name: "requests", Version: pkgversion.MustParse("2.32.5")},
		"urllib3":  {Name: "urllib3", Version: pkgversion.MustParse("2.0.7")},
		"idna":     {Name: "idna", Version: pkgversion.MustParse("3.7")},
	}}

	changes, err := applyPins(m, resolution)
	if err != nil {
		t.Fatalf("applyPins: %v", err)
	}
	want := []string{
		"idna (new) 3.7",
		"requests 2.31.0 -> 2.32.5",
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("changes[%d] = %q, want %q", i, changes[i], want[i])
		}
	}

	entry, ok := m.Get("idna")
	if !ok {
		t.Fatal("idna was not added to the manifest")
	}
	if version, _ := entry.Requirement.PinnedVersion(); version.String() != "3.7" {
		t.Errorf("idna pinned to %s, want 3.7", version.String())
	}
	entry, _ = m.Get("requests")
	if version, _ := entry.Requirement.PinnedVersion(); version.String() != "2.32.5" {
		t.Errorf("requests pinned to %s, want 2.32.5", version.String())
	}
}

func TestApplyPinsPreservesExtras(t *testing.T) {
	m, err := manifest.Parse([]byte("requests[socks]==2.31.0\n"))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	resolution := resolve.Resolution{Pins: map[pkgname.Name]resolve.Candidate{
		"requests": {Name: "requests", Version: pkgversion.MustParse("2.32.5"), Extras: []string{"socks"}},
	}}

	if _, err := applyPins(m, resolution); err != nil {
		t.Fatalf("applyPins: %v", err)
	}
	entry, _ := m.Get("requests")
	if got := entry.Requirement.Identifier(); got != "requests[socks]" {
		t.Errorf("identifier = %q, want requests[socks]", got)
	}
}

func TestCutoffFromFlags(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		cutoff, err := cutoffFromFlags("", "")
		if err != nil {
			t.Fatalf("cutoffFromFlags: %v", err)
		}
		if !cutoff.IsZero() {
			t.Errorf("cutoff = %s, want zero", cutoff.String())
		}
	})

	t.Run("earlier instant wins", func(t *testing.T) {
		cutoff, err := cutoffFromFlags("2026-03-01T00:00:00Z", "2026-01-15T00:00:00Z")
		if err != nil {
			t.Fatalf("cutoffFromFlags: %v", err)
		}
		if !cutoff.Instant.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("cutoff = %s, want the January instant", cutoff.String())
		}
	})

	t.Run("prior-to rejects the boundary instant", func(t *testing.T) {
		cutoff, err := cutoffFromFlags("", "2026-01-15T00:00:00Z")
		if err != nil {
			t.Fatalf("cutoffFromFlags: %v", err)
		}
		if !cutoff.Excludes(cutoff.Instant) {
			t.Error("an upload at the instant is not prior to it")
		}
		if cutoff.Excludes(cutoff.Instant.Add(-time.Second)) {
			t.Error("an upload before the instant must pass")
		}
	})

	t.Run("newer-than admits the boundary instant", func(t *testing.T) {
		cutoff, err := cutoffFromFlags("2026-01-15T00:00:00Z", "")
		if err != nil {
			t.Fatalf("cutoffFromFlags: %v", err)
		}
		if cutoff.Excludes(cutoff.Instant) {
			t.Error("an upload at the instant is not newer than it")
		}
	})

	t.Run("invalid value names the flag", func(t *testing.T) {
		_, err := cutoffFromFlags("not-a-date", "")
		if err == nil || !strings.Contains(err.Error(), "--exclude-newer-than") {
			t.Errorf("error = %v, want flag name", err)
		}
		_, err = cutoffFromFlags("", "not-a-date")
		if err == nil || !strings.Contains(err.Error(), "--uploaded-prior-to") {
			t.Errorf("error = %v, want flag name", err)
		}
	})
}

func TestNewestAdmissible(t *testing.T) {
	instant := func(day int) time.Time {
		return time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC)
	}
	candidate := func(version string, day int, yanked bool) resolve.Candidate {
		return resolve.Candidate{
			Name:    "requests",
			Version: pkgversion.MustParse(version),
			File:    pkgindex.File{Filename: "requests-" + version + ".tar.gz", UploadTime: instant(day), Yanked: yanked},
		}
	}
	candidates := []resolve.Candidate{
		candidate("1.0", 1, false),
		candidate("1.4", 10, false),
		candidate("1.5", 15, true),
		candidate("2.0rc1", 20, false),
	}

	t.Run("newest stable", func(t *testing.T) {
		got, ok := newestAdmissible(candidates, specifier.Set{}, resolve.Cutoff{}, false)
		if !ok || got.Version.String() != "1.4" {
			t.Errorf("got %v ok=%v, want 1.4", got.Version, ok)
		}
	})

	t.Run("prereleases admitted with the flag", func(t *testing.T) {
		got, ok := newestAdmissible(candidates, specifier.Set{}, resolve.Cutoff{}, true)
		if !ok || got.Version.String() != "2.0rc1" {
			t.Errorf("got %v ok=%v, want 2.0rc1", got.Version, ok)
		}
	})

	t.Run("yanked releases are skipped", func(t *testing.T) {
		got, ok := newestAdmissible(candidates, specifier.MustParseSet(">=1.5"), resolve.Cutoff{}, true)
		if !ok || got.Version.String() != "2.0rc1" {
			t.Errorf("got %v ok=%v, want 2.0rc1 past the yanked 1.5", got.Version, ok)
		}
	})

	t.Run("cutoff excludes late uploads", func(t *testing.T) {
		cutoff := resolve.Cutoff{Instant: instant(5)}
		got, ok := newestAdmissible(candidates, specifier.Set{}, cutoff, false)
		if !ok || got.Version.String() != "1.0" {
			t.Errorf("got %v ok=%v, want 1.0 under the cutoff", got.Version, ok)
		}
	})

	t.Run("specifier filters", func(t *testing.T) {
		got, ok := newestAdmissible(candidates, specifier.MustParseSet("<1.4"), resolve.Cutoff{}, false)
		if !ok || got.Version.String() != "1.0" {
			t.Errorf("got %v ok=%v, want 1.0", got.Version, ok)
		}
	})

	t.Run("nothing admissible", func(t *testing.T) {
		_, ok := newestAdmissible(candidates, specifier.MustParseSet(">=3"), resolve.Cutoff{}, false)
		if ok {
			t.Error("expected no admissible candidate above 3")
		}
	})

	t.Run("input order does not matter", func(t *testing.T) {
		reversed := []resolve.Candidate{candidates[3], candidates[2], candidates[1], candidates[0]}
		got, ok := newestAdmissible(reversed, specifier.Set{}, resolve.Cutoff{}, false)
		if !ok || got.Version.String() != "1.4" {
			t.Errorf("got %v ok=%v, want 1.4 regardless of input order", got.Version, ok)
		}
	})
}
