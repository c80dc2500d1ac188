// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/resolve"
	"github.com/baleproject/bale/lib/specifier"
)

// outdatedParams holds the parameters for the vendor outdated command.
type outdatedParams struct {
	ConfigPath       string `flag:"config"             desc:"project configuration file (default: bale.yaml)"`
	ExcludeNewerThan string `flag:"exclude-newer-than" desc:"ignore releases uploaded after this date or instant"`
	UploadedPriorTo  string `flag:"uploaded-prior-to"  desc:"ignore releases uploaded at or after this date or instant"`
	Pre              bool   `flag:"pre"                desc:"consider prerelease versions"`
	cli.JSONOutput
}

// outdatedEntry is one row of the report.
type outdatedEntry struct {
	Name    pkgname.Name `json:"name"`
	Current string       `json:"current"`
	Latest  string       `json:"latest"`
}

// outdatedCommand returns the "outdated" subcommand that compares pins
// against the index.
func outdatedCommand() *cli.Command {
	var params outdatedParams

	return &cli.Command{
		Name:    "outdated",
		Summary: "Show pins with a newer release on the index",
		Description: `Compare every manifest pin against the package index and report the
packages with a newer admissible release.

Yanked releases are never offered. Prereleases are offered only with
--pre. The date-cutoff flags bound what "newer" means: releases
uploaded after the cutoff are ignored, so the report can answer "what
was current last January". Dates extend to midnight local time; full
RFC 3339 instants keep their offset. When both cutoff flags are given
the earlier instant wins.

The report is informational — it never edits the manifest. Use
"bale vendor update" to move pins.`,
		Usage: "bale vendor outdated [flags]",
		Examples: []cli.Example{
			{
				Description: "Report stale pins",
				Command:     "bale vendor outdated",
			},
			{
				Description: "Report against the index as of a date",
				Command:     "bale vendor outdated --exclude-newer-than 2026-01-31",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("outdated", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale vendor outdated [flags]")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}
			index, err := cli.IndexClient(project)
			if err != nil {
				return err
			}
			m, err := manifest.Load(project.ManifestPath())
			if err != nil {
				return err
			}
			cutoff, err := cutoffFromFlags(params.ExcludeNewerThan, params.UploadedPriorTo)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()

			source := resolve.NewIndexSource(index)
			var stale []outdatedEntry
			for _, entry := range m.Entries {
				name := entry.Requirement.Name
				candidates, err := source.Candidates(ctx, name)
				if err != nil {
					return err
				}
				latest, ok := newestAdmissible(candidates, specifier.Set{}, cutoff, params.Pre)
				if !ok {
					continue
				}
				current, _ := entry.Requirement.PinnedVersion()
				if pkgversion.Less(current, latest.Version) {
					stale = append(stale, outdatedEntry{
						Name:    name,
						Current: current.String(),
						Latest:  latest.Version.String(),
					})
				}
			}

			if handled, err := params.EmitJSON(stale); handled || err != nil {
				return err
			}

			if len(stale) == 0 {
				fmt.Fprintf(os.Stderr, "all %d pinned package(s) are up to date\n", len(m.Entries))
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "PACKAGE\tCURRENT\tLATEST\n")
			for _, entry := range stale {
				fmt.Fprintf(writer, "%s\t%s\t%s\n", entry.Name, entry.Current, entry.Latest)
			}
			return writer.Flush()
		},
	}
}
