// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/releaseui"
)

type watchParams struct {
	ConfigPath string        `flag:"config"   desc:"project configuration file (default: bale.yaml)"`
	Release    string        `flag:"release"  desc:"release version (default: the newest started release)"`
	Vars       []string      `flag:"var"      desc:"set a plan variable (NAME=value, repeatable)"`
	Interval   time.Duration `flag:"interval" desc:"state file poll period" default:"1s"`
}

func watchCommand() *cli.Command {
	var params watchParams
	return &cli.Command{
		Name:    "watch",
		Summary: "Watch a release in a live dashboard",
		Description: `Open a full-screen dashboard showing the release's steps and their
live status. The dashboard polls the state file, so it tracks a
release being driven from another terminal. Read-only: it never
mutates release state. Quit with q.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release watch [--release <version>]")
			}
			_, plan, runner, err := buildRunner(params.ConfigPath, params.Vars)
			if err != nil {
				return err
			}
			state, err := loadTarget(runner, params.Release)
			if err != nil {
				return err
			}
			steps, err := expandedSteps(plan, runner, state)
			if err != nil {
				return err
			}

			model := releaseui.NewModel(releaseui.Config{
				Version:   state.Version,
				Steps:     steps,
				StatePath: runner.StatePath(state.Version),
				Interval:  params.Interval,
			})
			program := tea.NewProgram(model, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		},
	}
}
