// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package globpath matches slash-separated relative paths against glob
// patterns with a recursive wildcard. Vendoring configuration uses it
// for drop lists, substitution targets, and license file discovery.
package globpath

import (
	"path"
	"strings"
)

// Match checks whether a relative path matches a glob pattern:
//
//   - Exact match: "vendor.txt" matches only "vendor.txt"
//   - Single-segment wildcard: "pkg/*" matches "pkg/api.py" but not
//     "pkg/sub/api.py"
//   - Recursive wildcard: "pkg/**" matches everything under pkg/
//   - Universal: "**" matches any path
//   - Interior recursive: "pkg/**/tests" matches "pkg/tests",
//     "pkg/sub/tests", etc.
//   - Character wildcards: "?" matches a single non-slash character
//
// The single-segment wildcard "*" does not match "/", the standard
// path.Match behavior and the gitignore convention. Use "**" to match
// across directory boundaries.
//
// Malformed patterns (unmatched brackets, etc.) match nothing rather
// than propagating errors.
func Match(pattern, relpath string) bool {
	if pattern == "**" {
		return true
	}

	// No ** in the pattern: path.Match handles single-segment * and ?
	// correctly (not matching /).
	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, relpath)
	}

	// Suffix: "pkg/**" matches the prefix, then anything after.
	if suffix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if matchGlob(suffix, relpath) {
			return true
		}
		return hasMatchingPrefix(suffix, relpath)
	}

	// Prefix: "**/name" matches anything before, then the suffix.
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		if matchGlob(rest, relpath) {
			return true
		}
		return hasMatchingSuffix(rest, relpath)
	}

	// Interior: "pkg/**/tests" splits on the first /**/, matching
	// prefix and suffix independently.
	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex >= 0 {
		prefix := pattern[:separatorIndex]
		suffix := pattern[separatorIndex+4:]

		// Zero-segment case: ** consumes nothing.
		if matchGlob(prefix+"/"+suffix, relpath) {
			return true
		}

		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(relpath, "/")
		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}
		if !matchGlob(prefix, strings.Join(segments[:prefixDepth], "/")) {
			return false
		}
		if !matchGlob(suffix, strings.Join(segments[len(segments)-suffixDepth:], "/")) {
			return false
		}
		// Segments consumed by ** must be non-empty.
		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** separators are not supported.
	return false
}

// MatchAny reports whether the path matches any of the patterns. An
// empty pattern list matches nothing.
func MatchAny(patterns []string, relpath string) bool {
	for _, pattern := range patterns {
		if Match(pattern, relpath) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the path starts with segments
// matching the pattern, with at least one further segment after them.
func hasMatchingPrefix(pattern, relpath string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(relpath, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[:depth], "/"))
}

// hasMatchingSuffix reports whether the path ends with segments
// matching the pattern, with at least one segment before them.
func hasMatchingSuffix(pattern, relpath string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(relpath, "/")
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
