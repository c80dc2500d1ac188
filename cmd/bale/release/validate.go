// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"
	"sort"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/releaseplan"
	"github.com/spf13/pflag"
)

type validateParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

func validateCommand() *cli.Command {
	var params validateParams
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a release plan",
		Description: `Parse and validate a release plan: step IDs, actions, dependency
references, variable declarations, and cycle-free ordering. With no
argument the project's configured plan is checked.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return fmt.Errorf("usage: bale release validate [plan-file]")
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				project, err := cli.LoadProject(params.ConfigPath)
				if err != nil {
					return err
				}
				path = project.PlanPath()
			}

			plan, err := releaseplan.ReadFile(path)
			if err != nil {
				return err
			}

			issues := releaseplan.Validate(plan)
			if len(issues) == 0 {
				if _, err := plan.Order(); err != nil {
					issues = append(issues, err.Error())
				}
			}
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stdout, "  - %s\n", issue)
				}
				fmt.Fprintf(os.Stderr, "%s: %d issue(s)\n", path, len(issues))
				return &cli.ExitError{Code: 1}
			}

			fmt.Fprintf(os.Stdout, "%s: valid (%d steps)\n", path, len(plan.Steps))
			if len(plan.Variables) > 0 {
				names := make([]string, 0, len(plan.Variables))
				for name := range plan.Variables {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintln(os.Stdout, "variables:")
				for _, name := range names {
					variable := plan.Variables[name]
					line := "  - " + name
					if variable.Required {
						line += " (required)"
					}
					if variable.Description != "" {
						line += ": " + variable.Description
					}
					fmt.Fprintln(os.Stdout, line)
				}
			}
			return nil
		},
	}
}
