// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package vendorcmd implements the "bale vendor" command group: the
// manifest-driven life cycle of the vendored dependency tree. The
// package is named vendorcmd because the Go toolchain refuses import
// paths containing a "vendor" element.
package vendorcmd

import (
	"fmt"
	"sort"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/resolve"
	"github.com/baleproject/bale/lib/specifier"
	"github.com/baleproject/bale/lib/vendoring"
)

// Command returns the "vendor" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "vendor",
		Summary: "Manage the vendored dependency tree",
		Description: `Manage the vendored dependency tree described by vendor.txt.

The manifest pins every vendored package to an exact version. "sync"
rebuilds the destination tree from those pins: archives are fetched
(cache first, index on miss), unpacked, trimmed, patched, and their
imports rewritten into the vendoring namespace. The same manifest and
configuration always produce the same tree.

The destination directory is managed: sync refuses to clean a
directory that does not carry the managed-tree marker unless --adopt
takes ownership of it first.

Manifest edits ("add", "remove", "update") change vendor.txt only;
"sync" materializes them. "add" is the exception — it pins and syncs
in one step.`,
		Subcommands: []*cli.Command{
			syncCommand(),
			verifyCommand(),
			listCommand(),
			outdatedCommand(),
			updateCommand(),
			addCommand(),
			removeCommand(),
			licensesCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Rebuild the vendored tree from the manifest",
				Command:     "bale vendor sync",
			},
			{
				Description: "Check the tree against the manifest without touching it",
				Command:     "bale vendor verify",
			},
			{
				Description: "Pin a new package and vendor it",
				Command:     "bale vendor add 'requests>=2.31'",
			},
			{
				Description: "Move every pin to the newest admissible version",
				Command:     "bale vendor update --eager",
			},
			{
				Description: "Reproduce last January's tree",
				Command:     "bale vendor update --exclude-newer-than 2026-01-31",
			},
		},
	}
}

// buildSyncer assembles the sync engine from the project
// configuration: the index client, the archive cache, and the syncer.
func buildSyncer(configPath string) (*config.Config, *pkgindex.Client, *vendoring.Syncer, error) {
	project, err := cli.LoadProject(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	index, err := cli.IndexClient(project)
	if err != nil {
		return nil, nil, nil, err
	}
	cache, err := cli.OpenCache(project)
	if err != nil {
		return nil, nil, nil, err
	}
	syncer, err := vendoring.New(vendoring.Config{
		Project: project,
		Index:   index,
		Cache:   cache,
		Logger:  cli.NewCommandLogger(),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return project, index, syncer, nil
}

// cutoffFromFlags merges the two date-cutoff flags into one cutoff.
// When both are set the earlier instant wins. "Prior to" means
// strictly before, so that flag rejects the boundary instant itself;
// "newer than" admits it.
func cutoffFromFlags(excludeNewerThan, uploadedPriorTo string) (resolve.Cutoff, error) {
	var cutoffs []resolve.Cutoff
	if excludeNewerThan != "" {
		cutoff, err := resolve.ParseCutoff(excludeNewerThan)
		if err != nil {
			return resolve.Cutoff{}, fmt.Errorf("--exclude-newer-than: %w", err)
		}
		cutoffs = append(cutoffs, cutoff)
	}
	if uploadedPriorTo != "" {
		cutoff, err := resolve.ParseCutoff(uploadedPriorTo)
		if err != nil {
			return resolve.Cutoff{}, fmt.Errorf("--uploaded-prior-to: %w", err)
		}
		cutoff.ExcludeBoundary = true
		cutoffs = append(cutoffs, cutoff)
	}
	return resolve.Earliest(cutoffs...), nil
}

// newestAdmissible returns the newest candidate that passes the
// specifier, the cutoff, the yank rule, and the prerelease policy.
// With an empty specifier, prereleases are admitted only when the
// prereleases flag is set.
func newestAdmissible(candidates []resolve.Candidate, spec specifier.Set, cutoff resolve.Cutoff, prereleases bool) (resolve.Candidate, bool) {
	sorted := make([]resolve.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := pkgversion.Compare(sorted[i].Version, sorted[j].Version); c != 0 {
			return c > 0
		}
		return sorted[i].File.Filename < sorted[j].File.Filename
	})
	pre := prereleases || spec.AdmitsPrereleases()
	for _, candidate := range sorted {
		if cutoff.Excludes(candidate.File.UploadTime) {
			continue
		}
		if candidate.File.Yanked {
			continue
		}
		if spec.Empty() {
			if candidate.Version.IsPrerelease() && !pre {
				continue
			}
		} else if !spec.ContainsWith(candidate.Version, pre) {
			continue
		}
		return candidate, true
	}
	return resolve.Candidate{}, false
}
