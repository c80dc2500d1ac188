// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/spf13/pflag"
)

type abortParams struct {
	ConfigPath string `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string `flag:"release" desc:"release version (default: the newest started release)"`
}

func abortCommand() *cli.Command {
	var params abortParams
	return &cli.Command{
		Name:    "abort",
		Summary: "Abandon a release",
		Description: `Mark a release as abandoned. The state file stays behind as a record
of how far it got; further step operations on the release are
refused. Delete the state file to start the same version over.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("abort", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release abort [--release <version>]")
			}
			_, _, runner, err := buildRunner(params.ConfigPath, nil)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			if err := runner.Abort(state); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "release %s aborted; state kept at %s\n",
				state.Version, runner.StatePath(state.Version))
			return nil
		},
	}
}
