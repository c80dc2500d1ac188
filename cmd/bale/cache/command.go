// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the "bale cache" command group for the
// local archive cache.
package cache

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/cachestore"
	"github.com/spf13/pflag"
)

// Command returns the "cache" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect and maintain the archive cache",
		Description: `Inspect and maintain the local archive cache.

Downloaded archives are cached content-addressed, so re-vendoring a
package never re-downloads it. The cache caps itself at the configured
size; "gc" enforces the cap early, "purge" empties the cache entirely.`,
		Subcommands: []*cli.Command{
			infoCommand(),
			gcCommand(),
			purgeCommand(),
		},
	}
}

type infoParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
	cli.JSONOutput
}

// cacheInfo is the JSON shape of "cache info".
type cacheInfo struct {
	Dir string `json:"dir"`
	cachestore.Stats
	Compression string `json:"compression"`
	Encrypted   bool   `json:"encrypted"`
}

func infoCommand() *cli.Command {
	var params infoParams
	return &cli.Command{
		Name:    "info",
		Summary: "Show cache location and usage",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("info", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale cache info")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}
			store, err := cli.OpenCache(project)
			if err != nil {
				return err
			}
			info := cacheInfo{
				Dir:         project.Cache.Dir,
				Stats:       store.Stats(),
				Compression: project.Cache.Compression,
				Encrypted:   project.Cache.Encrypt,
			}
			if handled, err := params.EmitJSON(info); handled || err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "location\t%s\n", info.Dir)
			fmt.Fprintf(writer, "entries\t%d\n", info.Entries)
			if info.MaxBytes > 0 {
				fmt.Fprintf(writer, "size\t%s of %s\n", formatSize(info.TotalBytes), formatSize(info.MaxBytes))
			} else {
				fmt.Fprintf(writer, "size\t%s (no limit)\n", formatSize(info.TotalBytes))
			}
			fmt.Fprintf(writer, "compression\t%s\n", info.Compression)
			fmt.Fprintf(writer, "encrypted\t%t\n", info.Encrypted)
			return writer.Flush()
		},
	}
}

type gcParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

func gcCommand() *cli.Command {
	var params gcParams
	return &cli.Command{
		Name:    "gc",
		Summary: "Evict oldest entries beyond the size cap",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("gc", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale cache gc")
			}
			store, err := openStore(params.ConfigPath)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()
			reclaimed, err := store.GC(ctx)
			if err != nil {
				return err
			}
			if reclaimed.Entries == 0 {
				fmt.Fprintln(os.Stdout, "cache is within its size cap; nothing to reclaim")
				return nil
			}
			fmt.Fprintf(os.Stdout, "reclaimed %d entries (%s)\n", reclaimed.Entries, formatSize(reclaimed.Bytes))
			return nil
		},
	}
}

type purgeParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

func purgeCommand() *cli.Command {
	var params purgeParams
	return &cli.Command{
		Name:    "purge",
		Summary: "Delete every cached archive",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("purge", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale cache purge")
			}
			store, err := openStore(params.ConfigPath)
			if err != nil {
				return err
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()
			reclaimed, err := store.Purge(ctx)
			if err != nil {
				return err
			}
			if reclaimed.Entries == 0 {
				fmt.Fprintln(os.Stdout, "cache is empty")
				return nil
			}
			fmt.Fprintf(os.Stdout, "purged %d entries (%s)\n", reclaimed.Entries, formatSize(reclaimed.Bytes))
			return nil
		},
	}
}

func openStore(configPath string) (*cachestore.Store, error) {
	project, err := cli.LoadProject(configPath)
	if err != nil {
		return nil, err
	}
	return cli.OpenCache(project)
}

// formatSize returns a human-readable byte count.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
