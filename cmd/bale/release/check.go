// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/spf13/pflag"
)

type checkParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
}

func checkCommand() *cli.Command {
	var params checkParams
	return &cli.Command{
		Name:    "check",
		Summary: "Check off a completed manual step",
		Description: `Record that a manual step has been completed by hand. Only manual
steps can be checked off; automated steps run instead.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("check", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale release check <step-id>")
			}
			_, _, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			if err := runner.Check(state, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "step %s: checked off\n", args[0])
			reportStanding(runner, state)
			return nil
		},
	}
}
