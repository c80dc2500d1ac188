// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	librelease "github.com/baleproject/bale/lib/release"
	"github.com/baleproject/bale/lib/releaseplan"
	"github.com/spf13/pflag"
)

type runParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
	Force      bool     `flag:"force"   desc:"rerun a step that is done, skipped, or stuck running"`
}

func runCommand() *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Execute release steps",
		Description: `Execute release steps. With no argument, automated steps run in plan
order until the release completes, a manual step is next, or a step
fails. With a step ID, only that step runs; --force reruns a step
that already finished.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: bale release run [step-id]")
			}
			_, _, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()

			if len(args) == 1 {
				return runOne(ctx, runner, state, args[0], params.Force)
			}

			completed, err := runner.Run(ctx, state)
			for _, id := range completed {
				fmt.Fprintf(os.Stdout, "step %s: done\n", id)
			}
			if err != nil {
				return err
			}
			if len(completed) == 0 {
				fmt.Fprintln(os.Stdout, "no automated step is ready")
			}
			reportStanding(runner, state)
			return nil
		},
	}
}

// runOne executes a single step, translating a manual-step refusal
// into the check-off hint.
func runOne(ctx context.Context, runner *librelease.Runner, state *librelease.State, id string, force bool) error {
	err := runner.RunStep(ctx, state, id, force)
	var manual *librelease.ManualStepError
	if errors.As(err, &manual) {
		return fmt.Errorf("step %q is manual: complete it by hand, then run 'bale release check %s'", id, id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "step %s: done\n", id)
	reportStanding(runner, state)
	return nil
}

// reportStanding prints where the release stands after running steps:
// complete, waiting on a manual step, or nothing ready.
func reportStanding(runner *librelease.Runner, state *librelease.State) {
	if state.Complete() {
		fmt.Fprintf(os.Stdout, "\nrelease %s is complete\n", state.Version)
		return
	}
	step, ok := runner.Next(state)
	if !ok {
		return
	}
	if step.EffectiveAction() == releaseplan.ActionManual {
		fmt.Fprintf(os.Stdout, "\nnext step %q is manual: %s\n", step.ID, step.Name)
		fmt.Fprintf(os.Stdout, "complete it by hand, then run 'bale release check %s'\n", step.ID)
		return
	}
	fmt.Fprintf(os.Stdout, "\nnext step: %s (%s)\n", step.ID, step.Name)
}
