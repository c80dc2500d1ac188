// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgname"
)

// removeParams holds the parameters for the vendor remove command.
type removeParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

// removeCommand returns the "remove" subcommand that drops a manifest
// entry.
func removeCommand() *cli.Command {
	var params removeParams

	return &cli.Command{
		Name:    "remove",
		Summary: "Drop a package from the manifest",
		Description: `Drop a package's pin from the manifest. The name is canonicalized
first, so "Requests" and "requests" name the same entry.

The vendored tree is not touched; run "bale vendor sync" to rebuild it
without the package. Nothing checks whether the remaining packages
still import the removed one — "bale vendor verify" after the sync
reports a tree that no longer matches its imports only insofar as the
manifest is concerned.`,
		Usage: "bale vendor remove [flags] <package>",
		Examples: []cli.Example{
			{
				Description: "Drop a package and rebuild",
				Command:     "bale vendor remove chardet && bale vendor sync",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("remove", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale vendor remove [flags] <package>")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}
			m, err := manifest.Load(project.ManifestPath())
			if err != nil {
				return err
			}
			name := pkgname.Canonicalize(args[0])
			if !m.Remove(name) {
				return fmt.Errorf("%s is not in the manifest", name)
			}
			if err := m.Save(project.ManifestPath()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "removed %s; run 'bale vendor sync' to apply\n", name)
			return nil
		},
	}
}
