// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/mdterm"
	"github.com/baleproject/bale/lib/releaseplan"
	"github.com/spf13/pflag"
)

type nextParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
}

func nextCommand() *cli.Command {
	var params nextParams
	return &cli.Command{
		Name:    "next",
		Summary: "Show the next step that is ready to run",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("next", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release next [--release <version>]")
			}
			_, plan, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}

			step, ok := runner.Next(state)
			if !ok {
				if state.Complete() {
					fmt.Fprintf(os.Stdout, "release %s is complete\n", state.Version)
					return nil
				}
				fmt.Fprintf(os.Stdout, "nothing is ready: a step is running or blocked on a failure\n")
				fmt.Fprintf(os.Stdout, "see 'bale release status' for details\n")
				return nil
			}

			steps, err := expandedSteps(plan, runner, state)
			if err != nil {
				return err
			}
			for _, expanded := range steps {
				if expanded.ID == step.ID {
					step = expanded
					break
				}
			}

			fmt.Fprintf(os.Stdout, "next: %s — %s\n", step.ID, step.Name)
			if step.Description != "" {
				fmt.Fprintln(os.Stdout, indent(mdterm.Render(step.Description, mdterm.DefaultTheme, terminalWidth()-2)))
			}
			if step.EffectiveAction() == releaseplan.ActionManual {
				fmt.Fprintf(os.Stdout, "\nmanual step: complete it by hand, then run 'bale release check %s'\n", step.ID)
			} else {
				fmt.Fprintf(os.Stdout, "\nrun it with 'bale release run' or 'bale release run %s'\n", step.ID)
			}
			return nil
		},
	}
}
