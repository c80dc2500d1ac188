// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/baleproject/bale/lib/requirement"
)

const sample = `# Vendored dependencies.

requests==2.31.0
CacheControl==0.14.0  # keep in lockstep with requests
urllib3==1.26.18
`

func TestParse(t *testing.T) {
	t.Parallel()
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(m.Entries))
	}
	entry, ok := m.Get("cachecontrol")
	if !ok {
		t.Fatal("Get(cachecontrol) missed")
	}
	if entry.Line != 4 {
		t.Errorf("Line = %d, want 4", entry.Line)
	}
	if version, _ := entry.Requirement.PinnedVersion(); version.String() != "0.14.0" {
		t.Errorf("pinned version = %s", version)
	}
	if entry.Requirement.Comment != "keep in lockstep with requests" {
		t.Errorf("Comment = %q", entry.Requirement.Comment)
	}
	if _, ok := m.Get("CACHEControl"); !ok {
		t.Error("Get should canonicalize its argument")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		data string
		want string
	}{
		{"unpinned", "requests>=2.0\n", "must pin"},
		{"wildcard", "requests==2.*\n", "must pin"},
		{"direct", "pkg @ https://example.com/p.tar.gz\n", "direct URL"},
		{"duplicate", "pkg==1.0\nPKG==2.0\n", "duplicate"},
		{"garbage", "!!!\n", "line 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.data))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSetRemoveNames(t *testing.T) {
	t.Parallel()
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := m.Set(requirement.MustParse("urllib3==2.0.7")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entry, _ := m.Get("urllib3")
	if version, _ := entry.Requirement.PinnedVersion(); version.String() != "2.0.7" {
		t.Errorf("after Set, version = %s", version)
	}
	if err := m.Set(requirement.MustParse("idna==3.6")); err != nil {
		t.Fatalf("Set append: %v", err)
	}
	if err := m.Set(requirement.MustParse("loose>=1.0")); err == nil {
		t.Error("Set accepted an unpinned requirement")
	}
	if !m.Remove("Requests") {
		t.Error("Remove(Requests) missed")
	}
	if m.Remove("requests") {
		t.Error("second Remove should miss")
	}
	got := m.Names()
	want := []string{"cachecontrol", "urllib3", "idna"}
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("Names[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWriteAndReload(t *testing.T) {
	t.Parallel()
	m, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "#") {
		t.Error("generated manifest should start with a header comment")
	}
	if !strings.Contains(out, "cachecontrol==0.14.0  # keep in lockstep with requests") {
		t.Errorf("output missing canonicalized entry:\n%s", out)
	}
	reloaded, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(reloaded.Entries) != len(m.Entries) {
		t.Errorf("reload lost entries: %d != %d", len(reloaded.Entries), len(m.Entries))
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "vendor.txt")
	m := &Manifest{}
	if err := m.Set(requirement.MustParse("pkg==1.0")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Entries) != 1 || string(loaded.Entries[0].Requirement.Name) != "pkg" {
		t.Errorf("loaded = %+v", loaded.Entries)
	}
	if _, err := Load(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Load of missing file should fail")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
