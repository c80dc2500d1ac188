// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/spf13/pflag"
)

type skipParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
	Reason     string   `flag:"reason"  desc:"why the step is being skipped (recorded in the state)"`
}

func skipCommand() *cli.Command {
	var params skipParams
	return &cli.Command{
		Name:    "skip",
		Summary: "Skip a step",
		Description: `Mark a step as skipped. Skipped steps satisfy their dependents the
same way done ones do. The reason is recorded in the release state.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("skip", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale release skip <step-id> --reason <text>")
			}
			if params.Reason == "" {
				return fmt.Errorf("--reason is required: say why %q is being skipped", args[0])
			}
			_, _, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			if err := runner.Skip(state, args[0], params.Reason); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "step %s: skipped (%s)\n", args[0], params.Reason)
			reportStanding(runner, state)
			return nil
		},
	}
}
