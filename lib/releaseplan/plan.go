// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package releaseplan provides parsing, validation, ordering, and
// variable expansion for release plan definitions. A release plan is a
// structured sequence of steps (shell commands, git operations, CI
// gates, index uploads, and manual tasks) that carries a project from
// a clean worktree to a published release.
//
// Plans are authored on disk as JSONC files (JSON extended with //
// line comments, /* block comments */, and trailing commas),
// conventionally named release.jsonc at the project root.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Plan
//  2. Validate: structural checks (slug-shaped IDs, one action per step, etc.)
//  3. Order: dependency-ordered steps with cycle rejection
//  4. ResolveVariables + ExpandStep: substitute ${NAME} references before execution
package releaseplan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/specifier"
)

// Action identifies what a step does when the release runner executes
// it.
type Action string

const (
	// ActionRun executes a shell command via /bin/sh -c.
	ActionRun Action = "run"

	// ActionManual is a human task with no automation. The runner
	// refuses to execute it; the step completes when the operator
	// acknowledges it (bale release check, or ticking the checklist
	// box).
	ActionManual Action = "manual"

	// ActionBranch creates the release branch.
	ActionBranch Action = "branch"

	// ActionTag creates the release tag.
	ActionTag Action = "tag"

	// ActionCIWait polls the forge until CI checks for the release
	// branch head succeed or fail.
	ActionCIWait Action = "ci-wait"

	// ActionPublish uploads the configured build artifacts to the
	// package index.
	ActionPublish Action = "publish"
)

// Plan is a parsed release plan definition.
type Plan struct {
	// Description is a human-readable summary of what this plan
	// releases (e.g., "wada stable release").
	Description string `json:"description,omitempty"`

	// Version constrains the versions this plan may release, as a
	// comma-separated specifier set (e.g., ">=25.0,<26"). Empty means
	// any valid version. Checked by AllowsVersion when a release
	// starts.
	Version string `json:"version,omitempty"`

	// Variables declares the variables this plan expects, with
	// optional defaults and required flags. This is the declaration —
	// actual values come from command-line overrides, the process
	// environment, and the release context at runtime.
	Variables map[string]Variable `json:"variables,omitempty"`

	// Steps is the list of steps to execute. At least one step is
	// required. Execution order is determined by Order, not by list
	// position alone: a step runs only after everything in its After
	// list is done.
	Steps []Step `json:"steps"`
}

// Variable declares an expected variable for a plan.
type Variable struct {
	// Description explains what this variable is for (shown by
	// bale release validate).
	Description string `json:"description,omitempty"`

	// Default is the fallback value when the variable is not provided
	// by any source. Empty string is a valid default.
	Default string `json:"default,omitempty"`

	// Required means the runner must fail if this variable has no
	// value from any source (including Default).
	Required bool `json:"required,omitempty"`
}

// Step is a single step in a release plan. Exactly one action must be
// determinable: an explicit Action, a Run command (implying
// ActionRun), or Manual (implying ActionManual).
type Step struct {
	// ID is the step's stable identifier, used in state files,
	// checklist items, and on the command line (bale release run
	// <id>). Must be slug-shaped: lowercase letters, digits, and
	// single hyphens. Required.
	ID string `json:"id"`

	// Name is the human-readable step title, used in status output
	// and as the checklist item text. Required. May reference
	// variables (e.g., "Tag ${VERSION}").
	Name string `json:"name"`

	// Description is optional longer guidance shown by bale release
	// status --verbose and under the checklist item. For manual
	// steps this is the instruction the operator follows.
	Description string `json:"description,omitempty"`

	// Action selects the step's execution mode. Optional when Run or
	// Manual make it unambiguous; required for branch, tag, ci-wait,
	// and publish steps.
	Action Action `json:"action,omitempty"`

	// Run is a shell command executed via /bin/sh -c. Multi-line
	// strings are supported. Variable substitution (${NAME}) is
	// applied before execution. Implies ActionRun.
	Run string `json:"run,omitempty"`

	// Check is a post-step verification command. Runs after Run
	// succeeds; if Check exits non-zero, the step is treated as
	// failed. Catches commands that "succeed" without producing the
	// expected result. Only valid on run steps.
	Check string `json:"check,omitempty"`

	// Timeout is the maximum duration for this step (e.g., "5m",
	// "1h"). Parsed by time.ParseDuration. Valid on run steps (the
	// command is killed) and ci-wait steps (polling gives up).
	Timeout string `json:"timeout,omitempty"`

	// After lists the IDs of steps that must be done (or skipped)
	// before this step may run.
	After []string `json:"after,omitempty"`

	// Manual marks the step as a human task. Implies ActionManual.
	Manual bool `json:"manual,omitempty"`

	// Params configures typed actions: branch/tag take "name" and
	// "message" templates and tag takes "sign"; ci-wait takes
	// "interval"; publish takes "artifacts" (comma-separated globs
	// overriding the project configuration). Values may reference
	// variables.
	Params map[string]string `json:"params,omitempty"`
}

// EffectiveAction resolves the step's action. An explicit Action
// wins; otherwise a non-empty Run implies ActionRun and Manual
// implies ActionManual. Returns the empty Action when nothing
// determines one (Validate reports this as an issue).
func (s Step) EffectiveAction() Action {
	if s.Action != "" {
		return s.Action
	}
	if s.Run != "" {
		return ActionRun
	}
	if s.Manual {
		return ActionManual
	}
	return ""
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Plan.
func Parse(data []byte) (*Plan, error) {
	stripped := jsonc.ToJSON(data)

	var plan Plan
	if err := json.Unmarshal(stripped, &plan); err != nil {
		return nil, fmt.Errorf("parsing release plan: %w", err)
	}

	return &plan, nil
}

// ReadFile reads a JSONC plan file from disk and parses it into a
// Plan. Returns a descriptive error if the file cannot be read or the
// JSON is malformed.
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return plan, nil
}

// NameFromPath extracts a plan name from a file path by stripping the
// directory prefix and the file extension. For example,
// ".bale/plans/hotfix-release.jsonc" returns "hotfix-release".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}

// Step returns the step with the given ID, or false when the plan has
// no such step.
func (p *Plan) Step(id string) (Step, bool) {
	for _, step := range p.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return Step{}, false
}

// AllowsVersion reports whether version satisfies the plan's version
// requirements. Plans with an empty Version field allow every valid
// version. Prereleases are admitted: the operator typed the version
// explicitly, so the resolution-time prerelease exclusion does not
// apply.
func (p *Plan) AllowsVersion(version pkgversion.Version) (bool, error) {
	if strings.TrimSpace(p.Version) == "" {
		return true, nil
	}
	set, err := specifier.ParseSet(p.Version)
	if err != nil {
		return false, fmt.Errorf("plan version requirements: %w", err)
	}
	return set.ContainsWith(version, true), nil
}
