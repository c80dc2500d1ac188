// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgname provides package name validation and canonicalization.
//
// Package indexes treat names case-insensitively and consider runs of
// the separator characters `-`, `_`, and `.` equivalent, so "My_Pkg"
// and "my-pkg" refer to the same project. All internal lookups — the
// manifest, resolver identifiers, cache keys, index URLs — use the
// canonical form produced by [Canonicalize]. Display output keeps the
// spelling the user wrote.
package pkgname

import (
	"fmt"
	"strings"
)

// Name is a canonical package name: lowercase, with every run of
// separator characters collapsed to a single hyphen. Construct values
// with [Canonicalize]; a zero Name is the empty string and matches
// nothing.
type Name string

// Canonicalize returns the canonical form of a raw package name:
// lowercased, with each run of `-`, `_`, `.` replaced by a single `-`.
// Canonicalize is idempotent and does not validate — pass raw input
// through [Check] first when it crosses a trust boundary.
func Canonicalize(raw string) Name {
	var builder strings.Builder
	builder.Grow(len(raw))
	inSeparatorRun := false
	for _, r := range strings.ToLower(raw) {
		if r == '-' || r == '_' || r == '.' {
			inSeparatorRun = true
			continue
		}
		if inSeparatorRun {
			builder.WriteByte('-')
			inSeparatorRun = false
		}
		builder.WriteRune(r)
	}
	// A trailing separator run is dropped rather than rendered as a
	// hyphen: Check rejects such names anyway, and dropping keeps
	// Canonicalize idempotent on arbitrary input.
	return Name(builder.String())
}

// Module returns the name as an importable module directory name:
// the canonical form with hyphens replaced by underscores. This is the
// top-level directory an unpacked archive is expected to provide, and
// the token import rewriting matches on.
func (n Name) Module() string {
	return strings.ReplaceAll(string(n), "-", "_")
}

// Check validates a raw package name. Valid names start and end with an
// ASCII letter or digit and contain only ASCII letters, digits, and the
// separator characters `-`, `_`, `.`.
func Check(raw string) error {
	if raw == "" {
		return fmt.Errorf("package name is empty")
	}
	if !isAlphanumeric(raw[0]) {
		return fmt.Errorf("package name %q must start with a letter or digit", raw)
	}
	if !isAlphanumeric(raw[len(raw)-1]) {
		return fmt.Errorf("package name %q must end with a letter or digit", raw)
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if isAlphanumeric(c) || c == '-' || c == '_' || c == '.' {
			continue
		}
		return fmt.Errorf("package name %q contains invalid character %q", raw, c)
	}
	return nil
}

// Valid reports whether raw is a well-formed package name.
func Valid(raw string) bool {
	return Check(raw) == nil
}

// SplitExtras splits a resolver identifier of the form "name[a,b]" into
// its base name and extras. Identifiers without brackets return the
// input unchanged with nil extras. An unclosed bracket is not treated
// as an extras marker — the whole string is returned as the name.
func SplitExtras(identifier string) (string, []string) {
	open := strings.IndexByte(identifier, '[')
	if open < 0 || !strings.HasSuffix(identifier, "]") {
		return identifier, nil
	}
	base := identifier[:open]
	inner := identifier[open+1 : len(identifier)-1]
	if inner == "" {
		return base, nil
	}
	parts := strings.Split(inner, ",")
	extras := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			extras = append(extras, trimmed)
		}
	}
	return base, extras
}

func isAlphanumeric(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
