// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgname"
)

// listParams holds the parameters for the vendor list command.
type listParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
	cli.JSONOutput
}

// listEntry is one row of the listing.
type listEntry struct {
	Name    pkgname.Name `json:"name"`
	Version string       `json:"version"`
	Extras  []string     `json:"extras,omitempty"`
}

// listCommand returns the "list" subcommand that prints the manifest.
func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List the pinned packages",
		Description: `List every package the manifest pins, with its exact version and
requested extras. This reads vendor.txt only — it does not inspect the
vendored tree or the network. Use "bale vendor verify" to compare the
manifest against the tree.`,
		Usage: "bale vendor list [flags]",
		Examples: []cli.Example{
			{
				Description: "Show the pins as a table",
				Command:     "bale vendor list",
			},
			{
				Description: "Feed the pins to a script",
				Command:     "bale vendor list --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale vendor list [flags]")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}
			m, err := manifest.Load(project.ManifestPath())
			if err != nil {
				return err
			}

			entries := make([]listEntry, 0, len(m.Entries))
			for _, entry := range m.Entries {
				version, _ := entry.Requirement.PinnedVersion()
				entries = append(entries, listEntry{
					Name:    entry.Requirement.Name,
					Version: version.String(),
					Extras:  entry.Requirement.Extras,
				})
			}

			if handled, err := params.EmitJSON(entries); handled || err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Fprintf(os.Stderr, "manifest %s is empty\n", project.ManifestPath())
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "PACKAGE\tVERSION\tEXTRAS\n")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", entry.Name, entry.Version, strings.Join(entry.Extras, ","))
			}
			return writer.Flush()
		},
	}
}
