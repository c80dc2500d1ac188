// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/patchfile"
	"github.com/spf13/pflag"
)

type applyParams struct {
	Dir        string `flag:"dir"     desc:"directory to patch (default: the project's vendored tree)"`
	ConfigPath string `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Strip      int    `flag:"strip,p" desc:"leading path components to strip from patch paths" default:"1"`
	DryRun     bool   `flag:"dry-run" desc:"verify hunk placement without writing any file"`
	Reverse    bool   `flag:"reverse" desc:"apply the patch backwards, undoing a prior application"`
}

func applyCommand() *cli.Command {
	var params applyParams
	return &cli.Command{
		Name:    "apply",
		Summary: "Apply a patch file to a directory",
		Description: `Apply a unified diff to the vendored tree or to --dir.

Hunks match by context and may land offset from their stated line
numbers; hunks whose target text is already present are skipped, so
re-applying a patch is harmless. Files are rewritten only after every
hunk in the patch has been placed.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("apply", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale patch apply <patch-file>")
			}
			patch, err := loadPatch(args[0])
			if err != nil {
				return err
			}
			target, err := patchTarget(params.Dir, params.ConfigPath)
			if err != nil {
				return err
			}
			result, err := patchfile.Apply(target, patch, patchfile.Options{
				Strip:   params.Strip,
				DryRun:  params.DryRun,
				Reverse: params.Reverse,
			})
			if err != nil {
				return err
			}
			for _, file := range result.Files {
				fmt.Fprintf(os.Stdout, "%s: %s\n", file.Path, describeFile(file, params.DryRun))
			}
			if !result.Changed() {
				fmt.Fprintln(os.Stdout, "nothing to do")
			}
			return nil
		},
	}
}

// describeFile summarizes one file's outcome for display.
func describeFile(file patchfile.FileResult, dryRun bool) string {
	if !file.Changed {
		return "already applied"
	}
	verb := "patched"
	if dryRun {
		verb = "would patch"
	}
	switch file.Op {
	case patchfile.OpCreate:
		verb += " (new file)"
	case patchfile.OpDelete:
		verb += " (deleted)"
	}
	offset := 0
	for _, hunk := range file.Hunks {
		if hunk.Offset != 0 {
			offset++
		}
	}
	if offset > 0 {
		return fmt.Sprintf("%s, %d hunk(s) placed away from their stated lines", verb, offset)
	}
	return verb
}
