// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgversion implements the version scheme used by package
// indexes: an optional epoch, dotted release segments, and optional
// pre-release, post-release, dev-release, and local components
// ("1!2.0.3rc1.post4.dev5+ubuntu.1"). Versions have a total order:
// dev releases sort before pre-releases, pre-releases before finals,
// finals before post-releases, and local labels break ties above their
// public version.
//
// Parsing is permissive about spelling (a leading "v", mixed
// separators, "alpha" for "a", "rev" for "post") and [Version.String]
// always renders the canonical normalized form, so parsing a rendered
// version is a fixed point.
package pkgversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed version. The zero value is not valid; construct
// values with [Parse] or [MustParse].
type Version struct {
	epoch   int
	release []int
	pre     *letteredNumber
	post    *int
	dev     *int
	local   []localSegment
}

// letteredNumber is a phase letter with a number, e.g. rc1.
type letteredNumber struct {
	letter string
	number int
}

// localSegment is one dot-separated piece of a local version label.
// Numeric segments compare numerically and sort above alphanumeric
// segments.
type localSegment struct {
	numeric bool
	number  int
	text    string
}

// versionPattern matches the full version grammar. Group spellings are
// normalized after matching (see normalizePreLetter, normalizePostLetter).
var versionPattern = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_.]?(?P<preletter>alpha|beta|preview|pre|a|b|c|rc)[-_.]?(?P<prenumber>[0-9]+)?)?` +
	`(?:(?:-(?P<postimplicit>[0-9]+))|(?:[-_.]?(?P<postletter>post|rev|r)[-_.]?(?P<postnumber>[0-9]+)?))?` +
	`(?:[-_.]?(?P<devliteral>dev)[-_.]?(?P<devnumber>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_.][a-z0-9]+)*))?` +
	`\s*$`)

// Parse parses a version string. The input may carry a leading "v",
// surrounding whitespace, and any of the alternate component spellings;
// the returned Version renders canonically. Invalid input returns an
// error.
func Parse(s string) (Version, error) {
	match := versionPattern.FindStringSubmatch(s)
	if match == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	group := func(name string) string {
		return match[versionPattern.SubexpIndex(name)]
	}

	var v Version
	var err error
	if epoch := group("epoch"); epoch != "" {
		if v.epoch, err = parseNumber(s, epoch); err != nil {
			return Version{}, err
		}
	}
	for _, part := range strings.Split(group("release"), ".") {
		segment, err := parseNumber(s, part)
		if err != nil {
			return Version{}, err
		}
		v.release = append(v.release, segment)
	}
	if letter := group("preletter"); letter != "" {
		number, err := parseOptionalNumber(s, group("prenumber"))
		if err != nil {
			return Version{}, err
		}
		v.pre = &letteredNumber{
			letter: normalizePreLetter(letter),
			number: number,
		}
	}
	if implicit := group("postimplicit"); implicit != "" {
		number, err := parseNumber(s, implicit)
		if err != nil {
			return Version{}, err
		}
		v.post = &number
	} else if group("postletter") != "" {
		number, err := parseOptionalNumber(s, group("postnumber"))
		if err != nil {
			return Version{}, err
		}
		v.post = &number
	}
	if group("devliteral") != "" {
		number, err := parseOptionalNumber(s, group("devnumber"))
		if err != nil {
			return Version{}, err
		}
		v.dev = &number
	}
	if local := group("local"); local != "" {
		v.local = parseLocal(local)
	}
	return v, nil
}

// MustParse is Parse for trusted literals; it panics on invalid input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func normalizePreLetter(letter string) string {
	switch strings.ToLower(letter) {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default: // c, rc, pre, preview
		return "rc"
	}
}

func parseLocal(local string) []localSegment {
	raw := strings.FieldsFunc(strings.ToLower(local), func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	segments := make([]localSegment, 0, len(raw))
	for _, piece := range raw {
		if number, err := strconv.Atoi(piece); err == nil {
			segments = append(segments, localSegment{numeric: true, number: number})
		} else {
			segments = append(segments, localSegment{text: piece})
		}
	}
	return segments
}

// parseNumber converts one digit group of version. The pattern
// guarantees digits, so the only possible failure is a number too
// large for int. Version strings arrive from index documents, so
// that failure is an error, not a panic.
func parseNumber(version, digits string) (int, error) {
	number, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: number %q out of range", version, digits)
	}
	return number, nil
}

func parseOptionalNumber(version, digits string) (int, error) {
	if digits == "" {
		return 0, nil
	}
	return parseNumber(version, digits)
}

// Epoch returns the version epoch (0 when absent).
func (v Version) Epoch() int { return v.epoch }

// Release returns a copy of the dotted release segments.
func (v Version) Release() []int {
	out := make([]int, len(v.release))
	copy(out, v.release)
	return out
}

// IsPrerelease reports whether the version is a dev or pre release.
func (v Version) IsPrerelease() bool { return v.dev != nil || v.pre != nil }

// IsPostrelease reports whether the version has a post component.
func (v Version) IsPostrelease() bool { return v.post != nil }

// IsDevrelease reports whether the version has a dev component.
func (v Version) IsDevrelease() bool { return v.dev != nil }

// Local returns the normalized local label ("" when absent).
func (v Version) Local() string {
	if len(v.local) == 0 {
		return ""
	}
	parts := make([]string, len(v.local))
	for i, segment := range v.local {
		if segment.numeric {
			parts[i] = strconv.Itoa(segment.number)
		} else {
			parts[i] = segment.text
		}
	}
	return strings.Join(parts, ".")
}

// Public returns the version without its local label.
func (v Version) Public() Version {
	v.local = nil
	return v
}

// BaseVersion returns the epoch and release only: the version with
// pre, post, dev, and local components removed.
func (v Version) BaseVersion() Version {
	v.pre, v.post, v.dev, v.local = nil, nil, nil, nil
	return v
}

// String renders the canonical normalized form.
func (v Version) String() string {
	var builder strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&builder, "%d!", v.epoch)
	}
	for i, segment := range v.release {
		if i > 0 {
			builder.WriteByte('.')
		}
		builder.WriteString(strconv.Itoa(segment))
	}
	if v.pre != nil {
		fmt.Fprintf(&builder, "%s%d", v.pre.letter, v.pre.number)
	}
	if v.post != nil {
		fmt.Fprintf(&builder, ".post%d", *v.post)
	}
	if v.dev != nil {
		fmt.Fprintf(&builder, ".dev%d", *v.dev)
	}
	if local := v.Local(); local != "" {
		builder.WriteByte('+')
		builder.WriteString(local)
	}
	return builder.String()
}

// Canonicalize parses s and returns its canonical rendering. When
// stripTrailingZero is set, trailing ".0" release segments are removed
// ("1.2.0" renders as "1.2"). Unparseable input is returned unchanged —
// this mirrors how display paths handle legacy versions.
func Canonicalize(s string, stripTrailingZero bool) string {
	v, err := Parse(s)
	if err != nil {
		return s
	}
	if stripTrailingZero {
		v.release = stripTrailing(v.release)
	}
	return v.String()
}

func stripTrailing(release []int) []int {
	end := len(release)
	for end > 1 && release[end-1] == 0 {
		end--
	}
	return release[:end]
}

// Compare returns -1, 0, or +1 ordering a against b.
func Compare(a, b Version) int {
	if c := compareInt(a.epoch, b.epoch); c != 0 {
		return c
	}
	if c := compareRelease(a.release, b.release); c != 0 {
		return c
	}
	if c := comparePre(a, b); c != 0 {
		return c
	}
	if c := compareInt(postKey(a), postKey(b)); c != 0 {
		return c
	}
	if c := compareInt(devKey(a), devKey(b)); c != 0 {
		return c
	}
	return compareLocal(a.local, b.local)
}

// Less reports whether a orders before b.
func Less(a, b Version) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b are the same version, local label
// included.
func Equal(a, b Version) bool { return Compare(a, b) == 0 }

// compareRelease compares release tuples with trailing zeros removed,
// element-wise, shorter prefix first.
func compareRelease(a, b []int) int {
	a, b = stripTrailing(a), stripTrailing(b)
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareInt(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

// Pre-release rank sentinels. A dev release with no pre component sorts
// below every pre-release; a final (no pre) sorts above them all.
const (
	preRankDevOnly = -1
	preRankA       = 0
	preRankB       = 1
	preRankRC      = 2
	preRankFinal   = 3
)

func comparePre(a, b Version) int {
	rankA, numberA := preKey(a)
	rankB, numberB := preKey(b)
	if c := compareInt(rankA, rankB); c != 0 {
		return c
	}
	return compareInt(numberA, numberB)
}

func preKey(v Version) (int, int) {
	if v.pre == nil {
		if v.post == nil && v.dev != nil {
			return preRankDevOnly, 0
		}
		return preRankFinal, 0
	}
	switch v.pre.letter {
	case "a":
		return preRankA, v.pre.number
	case "b":
		return preRankB, v.pre.number
	default:
		return preRankRC, v.pre.number
	}
}

func postKey(v Version) int {
	if v.post == nil {
		return -1
	}
	return *v.post
}

func devKey(v Version) int {
	if v.dev == nil {
		return int(^uint(0) >> 1) // no dev component sorts last
	}
	return *v.dev
}

func compareLocal(a, b []localSegment) int {
	// No local label sorts below any local label.
	if len(a) == 0 || len(b) == 0 {
		return compareInt(len(a), len(b))
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareLocalSegment(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

func compareLocalSegment(a, b localSegment) int {
	switch {
	case a.numeric && b.numeric:
		return compareInt(a.number, b.number)
	case a.numeric:
		return 1 // numeric segments sort above alphanumeric
	case b.numeric:
		return -1
	default:
		return strings.Compare(a.text, b.text)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
