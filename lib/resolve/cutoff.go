// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"fmt"
	"strings"
	"time"
)

// Cutoff restricts candidate selection to releases uploaded before a
// fixed instant. The zero value imposes no restriction. The filter is
// only effective where the index supplies upload metadata; releases
// without it pass through.
type Cutoff struct {
	Instant time.Time

	// ExcludeBoundary rejects an upload at exactly Instant as well.
	// An --uploaded-prior-to cutoff sets it (prior means strictly
	// before); an --exclude-newer-than cutoff admits the boundary.
	ExcludeBoundary bool
}

// naiveLayouts are the ISO 8601 forms accepted without a zone offset.
// They are interpreted in the local time zone; a bare date extends to
// midnight.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCutoff parses a cutoff flag value. A datetime with a zone
// offset keeps the offset; a naive datetime gets the local zone; a
// bare date extends to local midnight. Anything else is an error.
func ParseCutoff(s string) (Cutoff, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Cutoff{}, fmt.Errorf("cutoff: empty value")
	}
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return Cutoff{Instant: t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return Cutoff{Instant: t}, nil
		}
	}
	return Cutoff{}, fmt.Errorf("cutoff %q: not an ISO 8601 datetime", trimmed)
}

// Earliest returns the earliest of the given cutoffs, ignoring zero
// values. When several date flags are set at once, the earlier
// instant wins; at the same instant the stricter boundary wins.
func Earliest(cutoffs ...Cutoff) Cutoff {
	var earliest Cutoff
	for _, c := range cutoffs {
		if c.IsZero() {
			continue
		}
		switch {
		case earliest.IsZero() || c.Instant.Before(earliest.Instant):
			earliest = c
		case c.Instant.Equal(earliest.Instant) && c.ExcludeBoundary:
			earliest.ExcludeBoundary = true
		}
	}
	return earliest
}

// IsZero reports whether the cutoff imposes no restriction.
func (c Cutoff) IsZero() bool { return c.Instant.IsZero() }

// Excludes reports whether a release uploaded at the given time falls
// outside the cutoff. A zero upload time is never excluded.
func (c Cutoff) Excludes(uploaded time.Time) bool {
	if c.Instant.IsZero() || uploaded.IsZero() {
		return false
	}
	if c.ExcludeBoundary && uploaded.Equal(c.Instant) {
		return true
	}
	return uploaded.After(c.Instant)
}

func (c Cutoff) String() string {
	if c.Instant.IsZero() {
		return ""
	}
	return c.Instant.Format(time.RFC3339)
}
