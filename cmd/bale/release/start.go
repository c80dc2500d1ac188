// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/spf13/pflag"
)

type startParams struct {
	ConfigPath string   `flag:"config" desc:"project configuration file (default: bale.yaml)"`
	Vars       []string `flag:"var"    desc:"set a plan variable (NAME=value, repeatable)"`
	Checklist  bool     `flag:"checklist" desc:"write the markdown checklist after starting" default:"true"`
}

func startCommand() *cli.Command {
	var params startParams
	return &cli.Command{
		Name:    "start",
		Summary: "Start a release for a version",
		Description: `Open a release for a version: check the version against the plan,
verify the working tree is clean, create and check out the release
branch, and record every plan step as pending.

Starting runs no steps. Follow with "bale release run", or work the
generated checklist.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("start", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale release start <version>")
			}
			_, _, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()

			state, err := runner.Start(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "release %s started on branch %s\n", state.Version, state.Branch)
			fmt.Fprintf(os.Stdout, "state: %s\n", runner.StatePath(state.Version))

			if params.Checklist {
				if err := runner.WriteChecklist(state); err != nil {
					return err
				}
			}

			if step, ok := runner.Next(state); ok {
				fmt.Fprintf(os.Stdout, "\nnext step: %s (%s)\n", step.ID, step.Name)
			}
			return nil
		},
	}
}
