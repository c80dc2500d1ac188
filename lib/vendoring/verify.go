// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendoring

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/baleproject/bale/lib/globpath"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/patchfile"
)

// Verify checks the vendored tree against the manifest, the patch
// directory, and the marker, without touching the network. It returns
// human-readable findings; an empty list means the tree is in sync.
func (s *Syncer) Verify(ctx context.Context) ([]string, error) {
	m, err := manifest.Load(s.project.ManifestPath())
	if err != nil {
		return nil, err
	}
	dest := s.project.DestinationPath()

	var findings []string
	entries, err := os.ReadDir(dest)
	if os.IsNotExist(err) {
		findings = append(findings, fmt.Sprintf("%s does not exist; run \"bale vendor sync\"",
			s.project.Vendoring.Destination))
		return findings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dest, err)
	}

	if _, err := os.Stat(filepath.Join(dest, MarkerName)); err != nil {
		findings = append(findings, fmt.Sprintf("missing %s marker; the tree was not built by a sync", MarkerName))
	}

	// Every manifest entry must be materialized as a module directory
	// or a flat module file.
	expected := map[string]bool{MarkerName: true, ReportName: true}
	for _, entry := range m.Entries {
		module := entry.Requirement.Name.Module()
		expected[module] = true
		expected[module+".py"] = true
		expected[module+".LICENSE"] = true
		dirInfo, dirErr := os.Stat(filepath.Join(dest, module))
		haveDir := dirErr == nil && dirInfo.IsDir()
		fileInfo, fileErr := os.Stat(filepath.Join(dest, module+".py"))
		haveFile := fileErr == nil && fileInfo.Mode().IsRegular()
		if !haveDir && !haveFile {
			findings = append(findings, fmt.Sprintf("%s: module %s is missing from the tree",
				entry.Requirement.Name, module))
		}
	}

	// And nothing else may live at the top level.
	for _, entry := range entries {
		name := entry.Name()
		if expected[name] {
			continue
		}
		if protectedEntry(dest, s.project.Vendoring.Protected, name, entry.IsDir()) {
			continue
		}
		findings = append(findings, fmt.Sprintf("unexpected entry %s is not in the manifest", name))
	}

	// Patches must parse and already be applied.
	paths, err := s.patchFiles()
	if err != nil {
		return findings, err
	}
	for _, patchPath := range paths {
		name := filepath.Base(patchPath)
		data, err := os.ReadFile(patchPath)
		if err != nil {
			return findings, fmt.Errorf("reading patch: %w", err)
		}
		patch, err := patchfile.Parse(data)
		if err != nil {
			findings = append(findings, fmt.Sprintf("patch %s does not parse: %v", name, err))
			continue
		}
		result, err := patchfile.Apply(dest, patch, patchfile.Options{Strip: 1, DryRun: true})
		switch {
		case err != nil:
			findings = append(findings, fmt.Sprintf("patch %s does not apply: %v", name, err))
		case result.Changed():
			findings = append(findings, fmt.Sprintf("patch %s is not applied to the tree", name))
		}
	}
	return findings, nil
}

// protectedEntry reports whether a top-level entry survives a clean:
// either its own name matches a protected glob, or (for a directory)
// some file under it does.
func protectedEntry(dest string, protected []string, name string, isDir bool) bool {
	if globpath.MatchAny(protected, name) {
		return true
	}
	if !isDir {
		return false
	}
	found := false
	filepath.WalkDir(filepath.Join(dest, name), func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dest, walkPath)
		if relErr != nil {
			return nil
		}
		if globpath.MatchAny(protected, filepath.ToSlash(rel)) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}
