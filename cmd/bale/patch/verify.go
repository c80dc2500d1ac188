// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/patchfile"
	"github.com/spf13/pflag"
)

type verifyParams struct {
	Dir        string `flag:"dir"     desc:"directory to check (default: the project's vendored tree)"`
	ConfigPath string `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Strip      int    `flag:"strip,p" desc:"leading path components to strip from patch paths" default:"1"`
}

func verifyCommand() *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check whether a patch is applied to a directory",
		Description: `Check a patch against the vendored tree or --dir without writing.

Exits 0 when every hunk is already present, 1 when the patch would
still change the tree, and reports an error when the patch no longer
applies at all.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale patch verify <patch-file>")
			}
			patch, err := loadPatch(args[0])
			if err != nil {
				return err
			}
			target, err := patchTarget(params.Dir, params.ConfigPath)
			if err != nil {
				return err
			}
			result, err := patchfile.Apply(target, patch, patchfile.Options{
				Strip:  params.Strip,
				DryRun: true,
			})
			if err != nil {
				return fmt.Errorf("patch does not apply: %w", err)
			}
			if result.Changed() {
				fmt.Fprintf(os.Stdout, "%s: not applied to %s\n", args[0], target)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintf(os.Stdout, "%s: applied\n", args[0])
			return nil
		},
	}
}
