// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/mdterm"
	librelease "github.com/baleproject/bale/lib/release"
	"github.com/baleproject/bale/lib/releaseplan"
	"github.com/spf13/pflag"
)

type statusParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
	Verbose    bool     `flag:"verbose,v" desc:"show step descriptions, timings, and output"`
	cli.JSONOutput
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show the progress of a release",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release status [--release <version>]")
			}
			_, plan, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			if handled, err := params.EmitJSON(state); handled || err != nil {
				return err
			}

			steps, err := expandedSteps(plan, runner, state)
			if err != nil {
				return err
			}
			printSummary(state)
			if params.Verbose {
				printVerbose(steps, state)
				return nil
			}
			printTable(steps, state)
			return nil
		},
	}
}

func printSummary(state *librelease.State) {
	complete, total := state.Progress()
	suffix := ""
	if state.Aborted {
		suffix = " (aborted)"
	}
	fmt.Fprintf(os.Stdout, "release %s on %s: %d/%d steps complete%s\n\n",
		state.Version, state.Branch, complete, total, suffix)
}

func printTable(steps []releaseplan.Step, state *librelease.State) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "STEP\tSTATUS\tNAME\n")
	for _, step := range steps {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", step.ID, stepStatus(state, step.ID), step.Name)
	}
	writer.Flush()
}

func printVerbose(steps []releaseplan.Step, state *librelease.State) {
	width := terminalWidth()
	for _, step := range steps {
		stepState := state.Steps[step.ID]
		header := fmt.Sprintf("%s: %s", step.ID, stepStatus(state, step.ID))
		if duration := stepDuration(stepState); duration != "" {
			header += fmt.Sprintf(" (%s)", duration)
		}
		fmt.Fprintln(os.Stdout, header)
		fmt.Fprintf(os.Stdout, "  %s\n", step.Name)
		if step.Description != "" {
			fmt.Fprintln(os.Stdout, indent(mdterm.Render(step.Description, mdterm.DefaultTheme, width-2)))
		}
		if stepState != nil {
			if stepState.SkipReason != "" {
				fmt.Fprintf(os.Stdout, "  skipped: %s\n", stepState.SkipReason)
			}
			if stepState.Error != "" {
				fmt.Fprintf(os.Stdout, "  error: %s\n", stepState.Error)
			}
			if stepState.Output != "" {
				fmt.Fprintln(os.Stdout, indent(stepState.Output))
			}
		}
		fmt.Fprintln(os.Stdout)
	}
}

// stepStatus looks up the recorded status, treating unknown steps
// (added to the plan after the release started) as pending.
func stepStatus(state *librelease.State, id string) librelease.Status {
	if stepState := state.Steps[id]; stepState != nil {
		return stepState.Status
	}
	return librelease.StatusPending
}

// stepDuration formats the step's wall time, or "" when it has not
// both started and finished.
func stepDuration(stepState *librelease.StepState) string {
	if stepState == nil || stepState.StartedAt == nil || stepState.FinishedAt == nil {
		return ""
	}
	return stepState.FinishedAt.Sub(*stepState.StartedAt).Round(time.Second).String()
}
