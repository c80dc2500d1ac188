// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseplan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// variablePattern matches ${NAME} references in strings. Only the
// braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// reservedVariables are injected from the release context and cannot
// be declared or overridden by a plan.
var reservedVariables = map[string]bool{
	"VERSION": true,
	"BRANCH":  true,
	"TAG":     true,
	"DATE":    true,
}

// Context carries the release-scoped values available to every step
// as reserved variables.
type Context struct {
	// Version is the release version string (e.g., "25.1").
	Version string

	// Branch is the release branch name.
	Branch string

	// Tag is the release tag name.
	Tag string

	// Date is the release date in YYYY-MM-DD form, taken from the
	// runner's clock when the release starts.
	Date string
}

// variables returns the context as a variable map under the reserved
// names.
func (c Context) variables() map[string]string {
	return map[string]string{
		"VERSION": c.Version,
		"BRANCH":  c.Branch,
		"TAG":     c.Tag,
		"DATE":    c.Date,
	}
}

// ResolveVariables merges variable sources according to plan
// resolution order (lowest to highest priority):
//
//  1. Declared defaults from plan variable definitions
//  2. Explicit values (e.g., --var flags on the command line)
//  3. Environment lookup via the environ function
//  4. The release context (VERSION, BRANCH, TAG, DATE)
//
// Returns the merged variable map. Returns an error if any required
// variable (per its declaration) has no value from any source.
//
// The environ function is typically os.Getenv for production use, or
// a stub for testing. It is only consulted for variables that are
// declared in the plan — undeclared environment variables are not
// included in the result.
func ResolveVariables(declarations map[string]Variable, values map[string]string, environ func(string) string, context Context) (map[string]string, error) {
	resolved := make(map[string]string, len(declarations)+len(values)+4)

	// Start with declared defaults (lowest priority).
	for name, declaration := range declarations {
		if declaration.Default != "" {
			resolved[name] = declaration.Default
		}
	}

	// Overlay explicit values.
	for name, value := range values {
		resolved[name] = value
	}

	// Overlay environment values for declared variables. Only
	// declared variables are looked up — we don't pull in the entire
	// process environment.
	if environ != nil {
		for name := range declarations {
			if value := environ(name); value != "" {
				resolved[name] = value
			}
		}
	}

	// The release context always wins. Validate rejects plans that
	// declare these names, and explicit values cannot shadow them.
	for name, value := range context.variables() {
		resolved[name] = value
	}

	// Check that all required variables have a value.
	var missing []string
	for name, declaration := range declarations {
		if declaration.Required {
			if _, exists := resolved[name]; !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required release variables not set: %s", strings.Join(missing, ", "))
	}

	return resolved, nil
}

// Expand replaces ${NAME} references in input with values from the
// variables map. Only the ${NAME} form is recognized (braces
// required); bare $NAME is left for shell interpretation.
//
// Returns an error listing all referenced variables that have no
// value in the map. This ensures plans fail fast on unresolvable
// references rather than producing broken commands.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract the variable name from ${NAME}.
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved release variables: %s", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// ExpandStep returns a copy of step with all string fields expanded
// using Expand: Name, Description, Run, Check, and every Params
// value. The original step and variables map are not modified.
func ExpandStep(step Step, variables map[string]string) (Step, error) {
	var err error

	if step.Name, err = Expand(step.Name, variables); err != nil {
		return Step{}, fmt.Errorf("step %q name: %w", step.ID, err)
	}
	if step.Description, err = Expand(step.Description, variables); err != nil {
		return Step{}, fmt.Errorf("step %q description: %w", step.ID, err)
	}
	if step.Run, err = Expand(step.Run, variables); err != nil {
		return Step{}, fmt.Errorf("step %q run: %w", step.ID, err)
	}
	if step.Check, err = Expand(step.Check, variables); err != nil {
		return Step{}, fmt.Errorf("step %q check: %w", step.ID, err)
	}

	if len(step.Params) > 0 {
		expanded := make(map[string]string, len(step.Params))
		for name, value := range step.Params {
			if expanded[name], err = Expand(value, variables); err != nil {
				return Step{}, fmt.Errorf("step %q params[%s]: %w", step.ID, name, err)
			}
		}
		step.Params = expanded
	}

	return step, nil
}
