// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
	"github.com/baleproject/bale/lib/resolve"
	"github.com/baleproject/bale/lib/vendoring"
)

// addParams holds the parameters for the vendor add command.
type addParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

// addCommand returns the "add" subcommand that pins one new package
// and vendors it.
func addCommand() *cli.Command {
	var params addParams

	return &cli.Command{
		Name:    "add",
		Summary: "Pin a package and vendor it",
		Description: `Pin a package in the manifest and rebuild the vendored tree.

The argument is a requirement: a bare name pins the newest release, a
specifier ("requests>=2.31") pins the newest admissible one, and an
exact pin ("requests==2.31.0") is verified against the index and taken
as is. Extras carry into the manifest entry. Yanked releases and
prereleases are never chosen implicitly — pin them exactly if you mean
them.

Direct URL requirements cannot be vendored; the manifest only accepts
index releases.

A missing manifest is created. After pinning, the tree is rebuilt, so
the one command leaves manifest and tree in agreement.`,
		Usage: "bale vendor add [flags] <requirement>",
		Examples: []cli.Example{
			{
				Description: "Vendor the newest release",
				Command:     "bale vendor add urllib3",
			},
			{
				Description: "Vendor the newest 2.x release with an extra",
				Command:     "bale vendor add 'requests[socks]>=2,<3'",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale vendor add [flags] <requirement>")
			}
			req, err := requirement.Parse(args[0])
			if err != nil {
				return err
			}
			if req.Direct() {
				return fmt.Errorf("%s: direct URL requirements cannot be vendored", req.Name)
			}

			project, index, syncer, err := buildSyncer(params.ConfigPath)
			if err != nil {
				return err
			}
			m, err := manifest.Load(project.ManifestPath())
			if errors.Is(err, os.ErrNotExist) {
				m = &manifest.Manifest{}
			} else if err != nil {
				return err
			}

			ctx, cancel := cli.SignalContext()
			defer cancel()

			var version pkgversion.Version
			if exact, ok := req.PinnedVersion(); ok {
				if _, err := index.Release(ctx, req.Name, exact.String()); err != nil {
					return err
				}
				version = exact
			} else {
				candidates, err := resolve.NewIndexSource(index).Candidates(ctx, req.Name)
				if err != nil {
					return err
				}
				candidate, ok := newestAdmissible(candidates, req.Specifier, resolve.Cutoff{}, false)
				if !ok {
					if req.Specifier.Empty() {
						return fmt.Errorf("%s: no release found on the index", req.Name)
					}
					return fmt.Errorf("%s: no release matches %s", req.Name, req.Specifier.String())
				}
				version = candidate.Version
			}

			pinned, err := requirement.Parse(req.Identifier() + "==" + version.String())
			if err != nil {
				return fmt.Errorf("pinning %s: %w", req.Name, err)
			}
			if err := m.Set(pinned); err != nil {
				return err
			}
			if err := m.Save(project.ManifestPath()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "pinned %s\n\n", pinned.String())

			outcome, err := syncer.Sync(ctx, vendoring.SyncOptions{})
			if err != nil {
				return err
			}
			return printOutcome(outcome)
		},
	}
}
