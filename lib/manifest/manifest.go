// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads and writes the vendoring manifest
// (vendor.txt): one pinned requirement per line, hash comments, blank
// lines. The manifest is the source of truth for what the sync engine
// materializes; every entry must pin an exact version.
package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/requirement"
)

// Entry is one manifest line.
type Entry struct {
	Requirement requirement.Requirement
	// Line is the 1-based source line, 0 for entries added in memory.
	Line int
}

// Manifest is an ordered list of pinned requirements, unique by
// canonical name.
type Manifest struct {
	Entries []Entry
}

// Parse parses manifest bytes. Blank lines and comment-only lines are
// skipped. Unpinned entries, direct URL entries, and duplicate names
// (after canonicalization) are errors.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[pkgname.Name]int)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := requirement.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if req.Direct() {
			return nil, fmt.Errorf("line %d: %s: direct URL entries are not allowed", lineNo, req.Name)
		}
		if !req.Pinned() {
			return nil, fmt.Errorf("line %d: %s: entry must pin an exact version (==)", lineNo, req.Name)
		}
		if previous, dup := seen[req.Name]; dup {
			return nil, fmt.Errorf("line %d: %s: duplicate of line %d", lineNo, req.Name, previous)
		}
		seen[req.Name] = lineNo
		m.Entries = append(m.Entries, Entry{Requirement: req, Line: lineNo})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Get returns the entry for name, canonicalizing the lookup.
func (m *Manifest) Get(name pkgname.Name) (Entry, bool) {
	name = pkgname.Canonicalize(string(name))
	for _, entry := range m.Entries {
		if entry.Requirement.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Set replaces the entry with the requirement's name, or appends a new
// one. The requirement must be pinned.
func (m *Manifest) Set(req requirement.Requirement) error {
	if !req.Pinned() {
		return fmt.Errorf("%s: manifest entries must pin an exact version", req.Name)
	}
	for i, entry := range m.Entries {
		if entry.Requirement.Name == req.Name {
			m.Entries[i].Requirement = req
			return nil
		}
	}
	m.Entries = append(m.Entries, Entry{Requirement: req})
	return nil
}

// Remove deletes the entry for name; it reports whether one existed.
func (m *Manifest) Remove(name pkgname.Name) bool {
	name = pkgname.Canonicalize(string(name))
	for i, entry := range m.Entries {
		if entry.Requirement.Name == name {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the canonical names in entry order.
func (m *Manifest) Names() []pkgname.Name {
	names := make([]pkgname.Name, len(m.Entries))
	for i, entry := range m.Entries {
		names[i] = entry.Requirement.Name
	}
	return names
}

// Write renders the manifest in canonical form with a generated
// header. Entry order is preserved; source comments are not.
func (m *Manifest) Write(w io.Writer) error {
	var builder strings.Builder
	builder.WriteString("# Vendored dependencies. Managed by bale; edit pins here,\n")
	builder.WriteString("# then run \"bale vendor sync\" to materialize the tree.\n")
	for _, entry := range m.Entries {
		builder.WriteString(entry.Requirement.String())
		if entry.Requirement.Comment != "" {
			builder.WriteString("  # ")
			builder.WriteString(entry.Requirement.Comment)
		}
		builder.WriteByte('\n')
	}
	_, err := io.WriteString(w, builder.String())
	return err
}

// Save writes the manifest to path atomically.
func (m *Manifest) Save(path string) error {
	var buf bytes.Buffer
	if err := m.Write(&buf); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vendor-*.txt")
	if err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}
