// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseplan

import (
	"fmt"
	"regexp"
	"time"

	"github.com/baleproject/bale/lib/specifier"
)

// stepIDPattern matches valid step IDs: lowercase letters and digits
// separated by single hyphens. Anchored to the full string.
var stepIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// variableNamePattern matches valid variable names (identifiers):
// start with a letter or underscore, followed by letters, digits, or
// underscores. Anchored to the full string.
var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// knownActions is the set of actions the release runner can execute.
var knownActions = map[Action]bool{
	ActionRun:     true,
	ActionManual:  true,
	ActionBranch:  true,
	ActionTag:     true,
	ActionCIWait:  true,
	ActionPublish: true,
}

// Validate checks a Plan for structural issues. Returns a list of
// human-readable issue descriptions. An empty list means the plan is
// valid.
//
// Structural checks include:
//   - At least one step is required
//   - Step IDs must be present, slug-shaped, and unique
//   - Each step must have a non-empty Name
//   - Each step must resolve to exactly one known action
//   - Check is only valid on run steps
//   - Timeout is only valid on run and ci-wait steps and must parse
//   - Params are only valid on branch, tag, ci-wait, and publish steps
//   - After references must name existing steps (and not the step itself)
//   - Variable names must be identifiers and not reserved
//   - The version requirement (when present) must parse as a specifier set
func Validate(plan *Plan) []string {
	var issues []string

	if len(plan.Steps) == 0 {
		issues = append(issues, "plan has no steps (at least one step is required)")
	}

	if plan.Version != "" {
		if _, err := specifier.ParseSet(plan.Version); err != nil {
			issues = append(issues, fmt.Sprintf("version: %v", err))
		}
	}

	for name := range plan.Variables {
		prefix := fmt.Sprintf("variables[%q]", name)
		if !variableNamePattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf(
				"%s: variable name must be a valid identifier ([A-Za-z_][A-Za-z0-9_]*)",
				prefix,
			))
		}
		if reservedVariables[name] {
			issues = append(issues, fmt.Sprintf(
				"%s: %s is reserved (set by the release context)", prefix, name,
			))
		}
	}

	// Step IDs must be unique across the plan. Duplicate IDs would
	// make state entries, checklist items, and After references
	// ambiguous.
	stepIDs := make(map[string]int, len(plan.Steps))
	for index, step := range plan.Steps {
		if step.ID != "" {
			if firstIndex, exists := stepIDs[step.ID]; exists {
				issues = append(issues, fmt.Sprintf(
					"steps[%d] %q: duplicate step ID (first used at steps[%d])",
					index, step.ID, firstIndex,
				))
			} else {
				stepIDs[step.ID] = index
			}
		}
	}

	for index, step := range plan.Steps {
		prefix := fmt.Sprintf("steps[%d]", index)
		issues = append(issues, validateStep(step, prefix, stepIDs)...)
	}

	return issues
}

// validateStep checks a single plan step for structural issues. The
// prefix identifies the step's position (e.g., "steps[0]") for error
// messages. stepIDs maps every declared step ID to its index, for
// checking After references.
func validateStep(step Step, prefix string, stepIDs map[string]int) []string {
	var issues []string

	switch {
	case step.ID == "":
		issues = append(issues, fmt.Sprintf("%s: id is required", prefix))
	case !stepIDPattern.MatchString(step.ID):
		issues = append(issues, fmt.Sprintf(
			"%s: id %q must be slug-shaped (lowercase letters, digits, single hyphens)",
			prefix, step.ID,
		))
		prefix = fmt.Sprintf("%s %q", prefix, step.ID)
	default:
		prefix = fmt.Sprintf("%s %q", prefix, step.ID)
	}

	if step.Name == "" {
		issues = append(issues, fmt.Sprintf("%s: name is required", prefix))
	}

	// Exactly one action must be determinable. An explicit Action
	// that contradicts Run or Manual is a conflict, not a tiebreak.
	action := step.EffectiveAction()
	switch {
	case action == "":
		issues = append(issues, fmt.Sprintf("%s: must set exactly one of action, run, or manual", prefix))
	case !knownActions[action]:
		issues = append(issues, fmt.Sprintf(
			"%s: unknown action %q (run, manual, branch, tag, ci-wait, publish)",
			prefix, action,
		))
	default:
		if step.Run != "" && action != ActionRun {
			issues = append(issues, fmt.Sprintf("%s: run and action %q are mutually exclusive", prefix, action))
		}
		if step.Manual && action != ActionManual {
			issues = append(issues, fmt.Sprintf("%s: manual and action %q are mutually exclusive", prefix, action))
		}
		if action == ActionRun && step.Run == "" {
			issues = append(issues, fmt.Sprintf("%s: action \"run\" requires a run command", prefix))
		}
		if step.Check != "" && action != ActionRun {
			issues = append(issues, fmt.Sprintf("%s: check is only valid on run steps", prefix))
		}
		if step.Timeout != "" && action != ActionRun && action != ActionCIWait {
			issues = append(issues, fmt.Sprintf("%s: timeout is only valid on run and ci-wait steps", prefix))
		}
		if len(step.Params) > 0 {
			switch action {
			case ActionBranch, ActionTag, ActionCIWait, ActionPublish:
			default:
				issues = append(issues, fmt.Sprintf("%s: params are only valid on branch, tag, ci-wait, and publish steps", prefix))
			}
		}
	}

	// Timeout must be parseable when present.
	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, step.Timeout, err))
		}
	}

	// After references must name existing steps.
	for _, reference := range step.After {
		if reference == step.ID {
			issues = append(issues, fmt.Sprintf("%s: after references the step itself", prefix))
			continue
		}
		if _, exists := stepIDs[reference]; !exists {
			issues = append(issues, fmt.Sprintf("%s: after references unknown step %q", prefix, reference))
		}
	}

	return issues
}
