// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package requirement parses single requirement lines: a package name,
// optional extras, and either a version specifier set or a direct URL.
//
//	requests
//	requests[socks]
//	requests==2.31.0
//	requests >=2.0, <3.0   # inline comment
//	requests @ https://example.com/requests-2.31.0.tar.gz
package requirement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/specifier"
)

// Requirement is one parsed requirement line. Name and Extras are
// canonicalized; Comment holds any inline comment text without the
// leading hash.
type Requirement struct {
	Name      pkgname.Name
	Extras    []string
	Specifier specifier.Set
	URL       string
	Comment   string
}

// Parse parses a requirement line. A "#" at the start of the line or
// preceded by whitespace begins a comment. The line must contain a
// requirement; blank and comment-only lines are the caller's to skip.
func Parse(line string) (Requirement, error) {
	body, comment := splitComment(line)
	body = strings.TrimSpace(body)
	if body == "" {
		return Requirement{}, fmt.Errorf("empty requirement")
	}
	req := Requirement{Comment: comment}

	nameEnd := 0
	for nameEnd < len(body) && isNameByte(body[nameEnd]) {
		nameEnd++
	}
	rawName := body[:nameEnd]
	if err := pkgname.Check(rawName); err != nil {
		return Requirement{}, fmt.Errorf("requirement %q: %w", line, err)
	}
	req.Name = pkgname.Canonicalize(rawName)
	rest := strings.TrimSpace(body[nameEnd:])

	if strings.HasPrefix(rest, "[") {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			return Requirement{}, fmt.Errorf("requirement %q: unclosed extras bracket", line)
		}
		for _, extra := range strings.Split(rest[1:close], ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				continue
			}
			if err := pkgname.Check(extra); err != nil {
				return Requirement{}, fmt.Errorf("requirement %q: extra: %w", line, err)
			}
			req.Extras = append(req.Extras, string(pkgname.Canonicalize(extra)))
		}
		sort.Strings(req.Extras)
		rest = rest[close+1:]
	}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "@") {
		url := strings.TrimSpace(rest[1:])
		if url == "" {
			return Requirement{}, fmt.Errorf("requirement %q: missing URL after @", line)
		}
		if strings.ContainsAny(url, " \t") {
			return Requirement{}, fmt.Errorf("requirement %q: unexpected content after URL", line)
		}
		req.URL = url
		return req, nil
	}

	// Parenthesized specifiers ("name (>=1.0)") are accepted.
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}
	if rest != "" {
		set, err := specifier.ParseSet(rest)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement %q: %w", line, err)
		}
		req.Specifier = set
	}
	return req, nil
}

// MustParse is Parse for trusted literals; it panics on error.
func MustParse(line string) Requirement {
	req, err := Parse(line)
	if err != nil {
		panic(err)
	}
	return req
}

// splitComment cuts an inline comment: "#" at the start of the line or
// preceded by whitespace. A hash inside a token (as in a URL fragment)
// does not start a comment.
func splitComment(line string) (body, comment string) {
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i == 0 || line[i-1] == ' ' || line[i-1] == '\t' {
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

func isNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.':
		return true
	}
	return false
}

// Direct reports whether the requirement points at a URL instead of an
// index lookup.
func (r Requirement) Direct() bool { return r.URL != "" }

// Pinned reports whether the requirement pins one exact version.
func (r Requirement) Pinned() bool {
	return r.URL == "" && r.Specifier.IsPinned()
}

// PinnedVersion returns the pinned version when Pinned and the operand
// parses.
func (r Requirement) PinnedVersion() (pkgversion.Version, bool) {
	if r.URL != "" {
		return pkgversion.Version{}, false
	}
	return r.Specifier.PinnedVersion()
}

// Identifier returns the resolver identifier: the canonical name, with
// extras appended in brackets when present.
func (r Requirement) Identifier() string {
	if len(r.Extras) == 0 {
		return string(r.Name)
	}
	return string(r.Name) + "[" + strings.Join(r.Extras, ",") + "]"
}

// String renders the canonical single-line form, without the comment.
func (r Requirement) String() string {
	var builder strings.Builder
	builder.WriteString(r.Identifier())
	if r.URL != "" {
		builder.WriteString(" @ ")
		builder.WriteString(r.URL)
		return builder.String()
	}
	if !r.Specifier.Empty() {
		builder.WriteString(r.Specifier.String())
	}
	return builder.String()
}
