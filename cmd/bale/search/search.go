// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package search implements "bale search", fuzzy filtering of index
// projects and vendored packages.
package search

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/fuzzy"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/spf13/pflag"
)

type searchParams struct {
	ConfigPath string `flag:"config"    desc:"project configuration file (default: bale.yaml)"`
	Index      bool   `flag:"index"     desc:"search the package index's project list (default)"`
	Installed  bool   `flag:"installed" desc:"search the manifest instead of the index"`
	Limit      int    `flag:"limit"     desc:"maximum number of results" default:"20"`
	cli.JSONOutput
}

// searchEntry is one result row.
type searchEntry struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Score   int    `json:"score"`
}

// Command returns the "search" command.
func Command() *cli.Command {
	var params searchParams
	return &cli.Command{
		Name:    "search",
		Summary: "Fuzzy-search packages",
		Description: `Fuzzy-search package names, fzf style: "reqs" finds requests,
"u3" finds urllib3. By default the package index's project list is
searched; --installed searches the manifest instead and shows pinned
versions. Results are ordered best match first.`,
		Usage: "bale search <pattern> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("search", &params)
		},
		Examples: []cli.Example{
			{
				Description: "Find index projects matching a rough name",
				Command:     "bale search reqsts",
			},
			{
				Description: "Filter the vendored packages",
				Command:     "bale search url --installed",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale search <pattern>")
			}
			if params.Index && params.Installed {
				return fmt.Errorf("--index and --installed are mutually exclusive")
			}
			pattern := args[0]

			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}

			var names []string
			versions := map[string]string{}
			if params.Installed {
				m, err := manifest.Load(project.ManifestPath())
				if err != nil {
					return err
				}
				for _, entry := range m.Entries {
					name := string(entry.Requirement.Name)
					names = append(names, name)
					if version, ok := entry.Requirement.PinnedVersion(); ok {
						versions[name] = version.String()
					}
				}
			} else {
				index, err := cli.IndexClient(project)
				if err != nil {
					return err
				}
				ctx, cancel := cli.SignalContext()
				defer cancel()
				projects, err := index.ProjectNames(ctx)
				if err != nil {
					return err
				}
				for _, name := range projects {
					names = append(names, string(name))
				}
			}

			entries := rankNames(names, versions, pattern, params.Limit)
			if handled, err := params.EmitJSON(entries); handled || err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(os.Stderr, "no package matches %q\n", pattern)
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "PACKAGE\tVERSION\n")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\n", entry.Name, entry.Version)
			}
			return writer.Flush()
		},
	}
}

// rankNames fuzzy-ranks names against pattern, carrying pinned
// versions through to the result rows.
func rankNames(names []string, versions map[string]string, pattern string, limit int) []searchEntry {
	ranked := fuzzy.Rank(names, pattern, limit)
	entries := make([]searchEntry, 0, len(ranked))
	for _, match := range ranked {
		entries = append(entries, searchEntry{
			Name:    match.Text,
			Version: versions[match.Text],
			Score:   match.Score,
		})
	}
	return entries
}
