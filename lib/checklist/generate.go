// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package checklist

import (
	"fmt"
	"strings"

	"github.com/baleproject/bale/lib/releaseplan"
)

// Meta describes the release a generated checklist belongs to.
type Meta struct {
	// Project is the project name used in the document title.
	Project string

	// Version is the release version.
	Version string

	// Date is the generation date in YYYY-MM-DD form.
	Date string
}

// Generate renders a release plan as a fresh markdown checklist.
// Steps appear in execution order, one task item each, with the step
// ID embedded as a trailing backticked reference so later checkbox
// edits can be mapped back to steps (Item.Ref). Steps whose ID is in
// done start checked. Step names and descriptions are rendered
// verbatim; callers expand variables first when they want resolved
// text.
func Generate(plan *releaseplan.Plan, meta Meta, done map[string]bool) ([]byte, error) {
	steps, err := plan.Order()
	if err != nil {
		return nil, fmt.Errorf("ordering steps: %w", err)
	}

	var b strings.Builder
	title := strings.TrimSpace(meta.Project + " " + meta.Version)
	fmt.Fprintf(&b, "# %s release\n\n", title)
	fmt.Fprintf(&b, "Generated by bale on %s. Automated steps are checked off as\n", meta.Date)
	b.WriteString("`bale release run` completes them. Tick manual steps by hand;\n")
	b.WriteString("`bale release checklist --sync` folds the edits back into the\n")
	b.WriteString("release state.\n\n")
	b.WriteString("## Steps\n\n")

	for _, step := range steps {
		cell := " "
		if done[step.ID] {
			cell = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s (`%s`)\n", cell, step.Name, step.ID)
		if step.Description != "" {
			// A blank line plus indentation makes the description its
			// own paragraph inside the list item, keeping the task
			// line (and its slug) to a single line.
			fmt.Fprintf(&b, "\n  %s\n\n", step.Description)
		}
	}

	return []byte(b.String()), nil
}
