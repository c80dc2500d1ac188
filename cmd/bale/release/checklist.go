// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/mdterm"
	"github.com/spf13/pflag"
)

type checklistParams struct {
	ConfigPath string   `flag:"config"  desc:"project configuration file (default: bale.yaml)"`
	Release    string   `flag:"release" desc:"release version (default: the newest started release)"`
	Vars       []string `flag:"var"     desc:"set a plan variable (NAME=value, repeatable)"`
	Write      bool     `flag:"write"   desc:"regenerate the checklist from the plan and state"`
	Sync       bool     `flag:"sync"    desc:"fold manual checkbox edits back into the release state"`
}

func checklistCommand() *cli.Command {
	var params checklistParams
	return &cli.Command{
		Name:    "checklist",
		Summary: "Render, regenerate, or sync the release checklist",
		Description: `Render the markdown release checklist to the terminal. --write
regenerates it from the plan and the release state, replacing hand
edits. --sync reads ticked checkboxes back into the state: a ticked
manual step becomes done, an unticked one reverts to pending.
Automated steps are owned by the runner and ignored by sync.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("checklist", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release checklist [--write | --sync]")
			}
			if params.Write && params.Sync {
				return fmt.Errorf("--write and --sync are mutually exclusive (sync first, then write)")
			}
			project, _, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}

			switch {
			case params.Write:
				if err := runner.WriteChecklist(state); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "wrote %s\n", project.ChecklistPath())
				return nil

			case params.Sync:
				changed, err := runner.SyncChecklist(state)
				if err != nil {
					return err
				}
				if len(changed) == 0 {
					fmt.Fprintln(os.Stdout, "checklist and release state already agree")
					return nil
				}
				for _, id := range changed {
					fmt.Fprintf(os.Stdout, "  - %s\n", id)
				}
				fmt.Fprintf(os.Stdout, "%d step(s) updated from the checklist\n", len(changed))
				return nil

			default:
				source, err := os.ReadFile(project.ChecklistPath())
				if err != nil {
					if os.IsNotExist(err) {
						return fmt.Errorf("no checklist at %s (run 'bale release checklist --write')", project.ChecklistPath())
					}
					return err
				}
				fmt.Fprint(os.Stdout, mdterm.Render(string(source), mdterm.DefaultTheme, terminalWidth()))
				return nil
			}
		},
	}
}
