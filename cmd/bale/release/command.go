// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package release implements the "bale release" command group: plan
// validation, starting a release, executing and checking off steps,
// the markdown checklist, and the live dashboard.
package release

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/forge"
	"github.com/baleproject/bale/lib/gitcli"
	"github.com/baleproject/bale/lib/pkgindex"
	librelease "github.com/baleproject/bale/lib/release"
	"github.com/baleproject/bale/lib/releaseplan"
)

// Command returns the "release" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "release",
		Summary: "Run a plan-based release process",
		Description: `Drive a release through the steps of the project's release plan.

A release plan (release.jsonc) declares the steps — shell commands,
tag and publish actions, CI gates, and manual tasks — with their
dependencies. "start" opens a release for a version; "run" executes
automated steps in order; manual steps are completed by hand and
checked off. Progress persists in a state file per version, so an
interrupted release resumes where it stopped.

Commands that operate on a started release default to the newest one;
pass --release to target another.`,
		Subcommands: []*cli.Command{
			initCommand(),
			startCommand(),
			statusCommand(),
			nextCommand(),
			runCommand(),
			checkCommand(),
			skipCommand(),
			abortCommand(),
			checklistCommand(),
			validateCommand(),
			watchCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Start releasing version 25.2",
				Command:     "bale release start 25.2",
			},
			{
				Description: "Run automated steps until a manual one is next",
				Command:     "bale release run",
			},
			{
				Description: "Check off a completed manual step",
				Command:     "bale release check announce",
			},
			{
				Description: "Watch a release from another terminal",
				Command:     "bale release watch",
			},
		},
	}
}

// buildRunner assembles the release runner: project configuration,
// parsed plan, and the git repository at the project root. Forge and
// index clients are deferred so their tokens are unsealed only when a
// step actually needs them.
func buildRunner(configPath string, varFlags []string) (*config.Config, *releaseplan.Plan, *librelease.Runner, error) {
	project, err := cli.LoadProject(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	plan, err := releaseplan.ReadFile(project.PlanPath())
	if err != nil {
		return nil, nil, nil, err
	}
	variables, err := parseVariables(varFlags)
	if err != nil {
		return nil, nil, nil, err
	}
	runner, err := librelease.NewRunner(librelease.Config{
		Plan:      plan,
		Project:   project,
		Repo:      gitcli.NewRepository(project.Root()),
		Forge:     func() (*forge.Client, error) { return cli.ForgeClient(project) },
		Index:     func() (*pkgindex.Client, error) { return cli.IndexClient(project) },
		Variables: variables,
		Logger:    cli.NewCommandLogger(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return project, plan, runner, nil
}

// parseVariables parses repeated --var NAME=value flags.
func parseVariables(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	variables := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--var %q: want NAME=value", pair)
		}
		variables[name] = value
	}
	return variables, nil
}

// loadTarget loads the release a command operates on: the --release
// version when given, otherwise the newest started release.
func loadTarget(runner *librelease.Runner, version string) (*librelease.State, error) {
	if version != "" {
		return runner.Load(version)
	}
	versions, err := runner.List()
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no release started (run 'bale release start <version>')")
	}
	return runner.Load(versions[len(versions)-1])
}

// expandedSteps returns the plan's steps in execution order with
// variables substituted. Expansion failures (an unset required
// variable, say) degrade to the raw step so read-only commands keep
// working.
func expandedSteps(plan *releaseplan.Plan, runner *librelease.Runner, state *librelease.State) ([]releaseplan.Step, error) {
	ordered, err := plan.Order()
	if err != nil {
		return nil, err
	}
	variables, err := runner.Variables(state)
	if err != nil {
		return ordered, nil
	}
	steps := make([]releaseplan.Step, len(ordered))
	for i, step := range ordered {
		expanded, err := releaseplan.ExpandStep(step, variables)
		if err != nil {
			expanded = step
		}
		steps[i] = expanded
	}
	return steps, nil
}

// terminalWidth returns the stdout width, or 80 when stdout is not a
// terminal.
func terminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// indent prefixes every non-empty line of text with two spaces.
func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}
