// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
)

// verifyParams holds the parameters for the vendor verify command.
type verifyParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

// verifyCommand returns the "verify" subcommand that checks the tree
// against the manifest.
func verifyCommand() *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Check the vendored tree against the manifest",
		Description: `Check the vendored tree against the manifest without modifying it.

Verify reports drift as human-readable findings: manifest entries with
no vendored module, vendored entries no manifest line accounts for,
patches that no longer apply, and a missing managed-tree marker.

Exits 0 when the tree is clean and 1 when any finding is reported,
so CI can gate on it.`,
		Usage: "bale vendor verify [flags]",
		Examples: []cli.Example{
			{
				Description: "Gate a pull request on vendoring drift",
				Command:     "bale vendor verify",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale vendor verify [flags]")
			}
			project, _, syncer, err := buildSyncer(params.ConfigPath)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()

			findings, err := syncer.Verify(ctx)
			if err != nil {
				return err
			}
			if len(findings) > 0 {
				for _, finding := range findings {
					fmt.Fprintf(os.Stdout, "  - %s\n", finding)
				}
				fmt.Fprintf(os.Stderr, "%s: %d finding(s)\n", project.DestinationPath(), len(findings))
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintf(os.Stdout, "%s: clean\n", project.DestinationPath())
			return nil
		},
	}
}
