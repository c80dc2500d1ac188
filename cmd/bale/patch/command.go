// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch implements the "bale patch" command group for working
// with the unified diffs the sync engine applies to the vendored tree.
package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/patchfile"
)

// Command returns the "patch" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "patch",
		Summary: "Apply and inspect vendored-tree patches",
		Description: `Apply and inspect the unified diffs kept in the patch directory.

Patches adapt vendored source without forking upstream: the canonical
example shifts an import onto the vendoring namespace and drops a
deprecation warning. "bale vendor sync" applies every patch in the
patch directory automatically; these commands work with a single patch
file while writing or debugging one.

Paths in patch headers are stripped like patch -p; git-style a/ b/
prefixes strip with the default of 1. Commands default to operating on
the project's vendored tree and take --dir to target any directory.`,
		Subcommands: []*cli.Command{
			applyCommand(),
			showCommand(),
			verifyCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Try a new patch against the tree without writing",
				Command:     "bale patch apply patches/urllib3-imports.patch --dry-run",
			},
			{
				Description: "Render a patch with syntax highlighting",
				Command:     "bale patch show patches/urllib3-imports.patch",
			},
			{
				Description: "Check that a patch is applied to a directory",
				Command:     "bale patch verify patches/urllib3-imports.patch --dir _vendor",
			},
		},
	}
}

// loadPatch reads and parses one patch file.
func loadPatch(path string) (*patchfile.Patch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch: %w", err)
	}
	patch, err := patchfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return patch, nil
}

// patchTarget resolves the directory a patch operates on: the --dir
// flag when given, the project's vendored tree otherwise.
func patchTarget(dir, configPath string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	project, err := cli.LoadProject(configPath)
	if err != nil {
		return "", err
	}
	return project.DestinationPath(), nil
}
