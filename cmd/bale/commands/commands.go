// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete bale CLI command tree. It is
// the single place where the subcommand groups are assembled, so the
// binary's main function and the command-tree tests share one source
// of truth.
package commands

import (
	"fmt"
	"os"

	authcmd "github.com/baleproject/bale/cmd/bale/auth"
	cachecmd "github.com/baleproject/bale/cmd/bale/cache"
	"github.com/baleproject/bale/cmd/bale/cli"
	doctorcmd "github.com/baleproject/bale/cmd/bale/doctor"
	patchcmd "github.com/baleproject/bale/cmd/bale/patch"
	releasecmd "github.com/baleproject/bale/cmd/bale/release"
	searchcmd "github.com/baleproject/bale/cmd/bale/search"
	"github.com/baleproject/bale/cmd/bale/vendorcmd"
	"github.com/baleproject/bale/lib/version"
)

// Root builds and returns the complete bale CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "bale",
		Summary: "Vendored-dependency manager and release runner",
		Description: `bale manages a project's vendored dependency tree and drives its
release process.

The vendored tree is declared in vendor.txt (pinned requirements),
configured in bale.yaml, and rebuilt deterministically by "bale
vendor sync": archives are fetched from the package index, verified,
unpacked, patched, and rewritten under the project's namespace. The
release process is declared in release.jsonc and driven step by step
by "bale release", with progress mirrored into a markdown checklist.`,
		Subcommands: []*cli.Command{
			vendorcmd.Command(),
			patchcmd.Command(),
			releasecmd.Command(),
			searchcmd.Command(),
			cachecmd.Command(),
			authcmd.Command(),
			doctorcmd.Command(),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale version")
			}
			fmt.Fprintf(os.Stdout, "bale %s\n", version.Full())
			return nil
		},
	}
}
