// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/requirement"
	"github.com/baleproject/bale/lib/resolve"
	"github.com/baleproject/bale/lib/specifier"
)

// constraintEnv names additional constraints files, space-separated.
const constraintEnv = "BALE_CONSTRAINT"

// updateParams holds the parameters for the vendor update command.
type updateParams struct {
	ConfigPath       string   `flag:"config"                desc:"project configuration file (default: bale.yaml)"`
	Constraints      []string `flag:"constraint,c"          desc:"constraints file restricting versions (repeatable)"`
	ExcludeNewerThan string   `flag:"exclude-newer-than"    desc:"ignore releases uploaded after this date or instant"`
	UploadedPriorTo  string   `flag:"uploaded-prior-to"     desc:"ignore releases uploaded at or after this date or instant"`
	MaxRounds        int      `flag:"max-resolution-rounds" desc:"bound on resolver pin and backtrack rounds" default:"200000"`
	Eager            bool     `flag:"eager"                 desc:"also move dependencies of the named packages"`
	Pre              bool     `flag:"pre"                   desc:"consider prerelease versions"`
	DryRun           bool     `flag:"dry-run"               desc:"print the pin changes without writing the manifest"`
}

// updateCommand returns the "update" subcommand that re-resolves pins.
func updateCommand() *cli.Command {
	var params updateParams

	return &cli.Command{
		Name:    "update",
		Summary: "Re-resolve manifest pins against the index",
		Description: `Re-resolve manifest pins and rewrite vendor.txt with the result.

With package names, only those packages (and whatever their new
versions require) are re-resolved; every other pin keeps its version
while it still satisfies the requirements. With --eager, dependencies
of the named packages move to their newest admissible versions too.
Without names, every pin is re-resolved.

Constraints files (--constraint, or the BALE_CONSTRAINT environment
variable naming space-separated paths) restrict versions without
introducing packages: a constraint on a package nothing requires is
inert. The date-cutoff flags exclude releases uploaded after a fixed
instant, for reproducing a historical tree; when both are given the
earlier instant wins.

Resolution is a bounded backtracking search. A resolution that
exceeds --max-resolution-rounds fails with the round count rather
than running forever.

The manifest is rewritten only on success, and only the changed pins
are reported. Run "bale vendor sync" afterwards to materialize the
new pins.`,
		Usage: "bale vendor update [flags] [package...]",
		Examples: []cli.Example{
			{
				Description: "Update a single package and what it needs",
				Command:     "bale vendor update requests",
			},
			{
				Description: "Update everything within a constraints file",
				Command:     "bale vendor update -c constraints.txt",
			},
			{
				Description: "Preview the changes",
				Command:     "bale vendor update --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("update", &params)
		},
		Run: func(args []string) error {
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

			roots, err := updateRoots(m, args)
			if err != nil {
				return err
			}
			constraints, err := loadConstraints(params.Constraints)
			if err != nil {
				return err
			}
			cutoff, err := cutoffFromFlags(params.ExcludeNewerThan, params.UploadedPriorTo)
			if err != nil {
				return err
			}
			installed := make(map[pkgname.Name]pkgversion.Version, len(m.Entries))
			for _, entry := range m.Entries {
				if version, ok := entry.Requirement.PinnedVersion(); ok {
					installed[entry.Requirement.Name] = version
				}
			}
			strategy := resolve.UpgradeOnlyIfNeeded
			if params.Eager {
				strategy = resolve.UpgradeEager
			}

			ctx, cancel := cli.SignalContext()
			defer cancel()

			resolution, err := resolve.Resolve(ctx, resolve.NewIndexSource(index), roots, resolve.Options{
				MaxRounds:       params.MaxRounds,
				Cutoff:          cutoff,
				Constraints:     constraints,
				UpgradeStrategy: strategy,
				Prereleases:     params.Pre,
				Installed:       installed,
				Logger:          cli.NewCommandLogger(),
			})
			if err != nil {
				return err
			}

			changes, err := applyPins(m, resolution)
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				fmt.Fprintf(os.Stderr, "nothing to update\n")
				return nil
			}
			for _, change := range changes {
				fmt.Fprintf(os.Stdout, "%s\n", change)
			}
			if params.DryRun {
				return nil
			}
			if err := m.Save(project.ManifestPath()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\n%d pin(s) updated; run 'bale vendor sync' to apply\n", len(changes))
			return nil
		},
	}
}

// updateRoots builds the unpinned requirements the resolver starts
// from: the named manifest entries, or all of them when no names are
// given. Extras recorded in the manifest carry over.
func updateRoots(m *manifest.Manifest, names []string) ([]requirement.Requirement, error) {
	if len(names) == 0 {
		roots := make([]requirement.Requirement, 0, len(m.Entries))
		for _, entry := range m.Entries {
			roots = append(roots, requirement.Requirement{
				Name:   entry.Requirement.Name,
				Extras: entry.Requirement.Extras,
			})
		}
		return roots, nil
	}
	roots := make([]requirement.Requirement, 0, len(names))
	for _, raw := range names {
		name := pkgname.Canonicalize(raw)
		entry, ok := m.Get(name)
		if !ok {
			return nil, fmt.Errorf("%s is not in the manifest", name)
		}
		roots = append(roots, requirement.Requirement{
			Name:   entry.Requirement.Name,
			Extras: entry.Requirement.Extras,
		})
	}
	return roots, nil
}

// loadConstraints reads every constraints file named by the flags and
// the BALE_CONSTRAINT environment variable. Several constraints on the
// same package intersect.
func loadConstraints(paths []string) (map[pkgname.Name]resolve.Constraint, error) {
	paths = append(paths, strings.Fields(os.Getenv(constraintEnv))...)
	if len(paths) == 0 {
		return nil, nil
	}
	constraints := make(map[pkgname.Name]resolve.Constraint)
	for _, path := range paths {
		if err := loadConstraintFile(path, constraints); err != nil {
			return nil, err
		}
	}
	return constraints, nil
}

// loadConstraintFile parses one constraints file into the map. Lines
// look like requirement lines but must not carry extras or URLs.
func loadConstraintFile(path string, constraints map[pkgname.Name]resolve.Constraint) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading constraints: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := requirement.Parse(line)
		if err != nil {
			return fmt.Errorf("%s: line %d: %w", path, lineNo, err)
		}
		if req.Direct() {
			return fmt.Errorf("%s: line %d: %s: constraints cannot be direct URLs", path, lineNo, req.Name)
		}
		if len(req.Extras) > 0 {
			return fmt.Errorf("%s: line %d: %s: constraints cannot carry extras", path, lineNo, req.Name)
		}
		merged := req.Specifier
		if existing, ok := constraints[req.Name]; ok && !existing.Specifier.Empty() {
			if merged.Empty() {
				merged = existing.Specifier
			} else {
				combined, err := specifier.ParseSet(existing.Specifier.String() + "," + merged.String())
				if err != nil {
					return fmt.Errorf("%s: line %d: %s: %w", path, lineNo, req.Name, err)
				}
				merged = combined
			}
		}
		constraints[req.Name] = resolve.Constraint{Specifier: merged}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// applyPins folds a resolution back into the manifest and returns a
// human-readable line per changed pin, sorted by package name.
func applyPins(m *manifest.Manifest, resolution resolve.Resolution) ([]string, error) {
	var changes []string
	for name, candidate := range resolution.Pins {
		identifier := string(name)
		if len(candidate.Extras) > 0 {
			identifier += "[" + strings.Join(candidate.Extras, ",") + "]"
		}
		pinned, err := requirement.Parse(identifier + "==" + candidate.Version.String())
		if err != nil {
			return nil, fmt.Errorf("pinning %s: %w", name, err)
		}
		previous, existed := m.Get(name)
		if existed {
			if current, ok := previous.Requirement.PinnedVersion(); ok && pkgversion.Equal(current, candidate.Version) {
				continue
			}
		}
		if err := m.Set(pinned); err != nil {
			return nil, err
		}
		if existed {
			current, _ := previous.Requirement.PinnedVersion()
			changes = append(changes, fmt.Sprintf("%s %s -> %s", name, current.String(), candidate.Version.String()))
		} else {
			changes = append(changes, fmt.Sprintf("%s (new) %s", name, candidate.Version.String()))
		}
	}
	sort.Strings(changes)
	return changes, nil
}
