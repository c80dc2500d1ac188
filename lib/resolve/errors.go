// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"fmt"
	"strings"

	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/requirement"
)

// TooDeepError reports that resolution hit the round limit without
// completing.
type TooDeepError struct {
	Rounds int
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("resolution exceeded %d rounds", e.Rounds)
}

// Cause is one requirement that participated in an unresolvable
// conflict, together with the package that introduced it. Parent is
// empty for root requirements.
type Cause struct {
	Requirement requirement.Requirement
	Parent      pkgname.Name
}

func (c Cause) String() string {
	if c.Parent == "" {
		return c.Requirement.String()
	}
	return fmt.Sprintf("%s (from %s)", c.Requirement, c.Parent)
}

// ConflictError reports that no candidate assignment satisfies the
// requirements.
type ConflictError struct {
	Causes []Cause
}

func (e *ConflictError) Error() string {
	if len(e.Causes) == 0 {
		return "requirements cannot be satisfied"
	}
	parts := make([]string, len(e.Causes))
	for i, cause := range e.Causes {
		parts[i] = cause.String()
	}
	return "cannot satisfy " + strings.Join(parts, ", ")
}

// toCauses converts internal conflict information to the exported
// form, dropping duplicates while keeping first-seen order.
func toCauses(info []information) []Cause {
	seen := make(map[string]bool, len(info))
	causes := make([]Cause, 0, len(info))
	for _, entry := range info {
		cause := Cause{Requirement: entry.requirement, Parent: pkgname.Name(entry.parent)}
		key := cause.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		causes = append(causes, cause)
	}
	return causes
}
