// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/vendoring"
)

// syncParams holds the parameters for the vendor sync command.
type syncParams struct {
	ConfigPath string `flag:"config"   desc:"project configuration file (default: bale.yaml)"`
	DryRun     bool   `flag:"dry-run"  desc:"print the action plan without touching the tree"`
	Adopt      bool   `flag:"adopt"    desc:"take ownership of an unmanaged destination directory"`
	NoCache    bool   `flag:"no-cache" desc:"bypass the archive cache for this run"`
}

// syncCommand returns the "sync" subcommand that rebuilds the tree.
func syncCommand() *cli.Command {
	var params syncParams

	return &cli.Command{
		Name:    "sync",
		Summary: "Rebuild the vendored tree from the manifest",
		Description: `Rebuild the vendored tree from the manifest pins.

Sync cleans the destination (protected entries survive), fetches every
pinned archive — from the cache when present, from the index
otherwise, always digest-verified — unpacks it, applies the drop
globs, applies every patch in the patch directory, rewrites imports
into the vendoring namespace, collects license files, and writes the
managed-tree marker and the license report.

The run is deterministic: the same manifest, configuration, and
archives produce a byte-identical tree. A destination that exists but
does not carry the marker is refused; pass --adopt to take ownership
of it.

--dry-run prints the action plan (fetch, unpack, drop, patch, rewrite,
license) without touching the tree or the network beyond metadata
lookups.`,
		Usage: "bale vendor sync [flags]",
		Examples: []cli.Example{
			{
				Description: "Rebuild the tree",
				Command:     "bale vendor sync",
			},
			{
				Description: "Show what a sync would do",
				Command:     "bale vendor sync --dry-run",
			},
			{
				Description: "Take over a hand-built vendor directory",
				Command:     "bale vendor sync --adopt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sync", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale vendor sync [flags]")
			}
			_, _, syncer, err := buildSyncer(params.ConfigPath)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()

			if params.DryRun {
				plan, err := syncer.Plan(ctx)
				if err != nil {
					return err
				}
				for _, action := range plan.Actions {
					fmt.Fprintf(os.Stdout, "%s\n", action)
				}
				return nil
			}

			outcome, err := syncer.Sync(ctx, vendoring.SyncOptions{
				Adopt:   params.Adopt,
				NoCache: params.NoCache,
			})
			if err != nil {
				return err
			}
			return printOutcome(outcome)
		},
	}
}

// printOutcome renders a sync outcome: one row per package, then a
// summary line.
func printOutcome(outcome *vendoring.Outcome) error {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "PACKAGE\tVERSION\tSOURCE\tLICENSES\n")
	for _, pkg := range outcome.Packages {
		source := "index"
		if pkg.FromCache {
			source = "cache"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\n", pkg.Name, pkg.Version, source, len(pkg.Licenses))
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d package(s) vendored, %d patch(es) applied, %d file(s) rewritten\n",
		len(outcome.Packages), len(outcome.Patches), len(outcome.Rewritten))
	return nil
}
