// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"
	"time"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/checklist"
	"github.com/baleproject/bale/lib/releaseplan"
	"github.com/spf13/pflag"
)

// starterPlan is the plan "bale release init" writes. It mirrors a
// typical index-published project's process: finalize the changelog,
// test, tag, wait for CI, build, publish, announce.
const starterPlan = `{
  // Release plan. Edit the steps to match your process, then check the
  // result with "bale release validate".
  //
  // Step actions: "run" executes a shell command, "tag" tags the
  // release, "ci-wait" polls the forge until CI passes, "publish"
  // uploads the configured artifacts to the package index, and
  // "manual" steps are completed by hand and checked off with
  // "bale release check <id>".
  "description": "stable release",
  "steps": [
    {
      "id": "changelog",
      "name": "Finalize the changelog for ${VERSION}",
      "manual": true,
      "description": "Collect the news fragments into the changelog and commit the result."
    },
    {
      "id": "tests",
      "name": "Run the test suite",
      "run": "make test",
      "after": ["changelog"]
    },
    {
      "id": "tag",
      "name": "Tag ${VERSION}",
      "action": "tag",
      "after": ["tests"]
    },
    {
      "id": "ci",
      "name": "Wait for CI on the release branch",
      "action": "ci-wait",
      "timeout": "45m",
      "after": ["tag"]
    },
    {
      "id": "build",
      "name": "Build the release artifacts",
      "run": "make dist",
      "after": ["ci"]
    },
    {
      "id": "publish",
      "name": "Upload ${VERSION} to the package index",
      "action": "publish",
      "after": ["build"]
    },
    {
      "id": "announce",
      "name": "Announce the release",
      "manual": true,
      "description": "Post the release announcement and close the milestone.",
      "after": ["publish"]
    }
  ]
}
`

type initParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
}

func initCommand() *cli.Command {
	var params initParams
	return &cli.Command{
		Name:    "init",
		Summary: "Write a starter release plan and checklist",
		Description: `Write a starter release plan to the configured plan path and a
matching checklist template. Existing files are left alone.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("init", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale release init")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}

			planPath := project.PlanPath()
			if _, err := os.Stat(planPath); err == nil {
				return fmt.Errorf("%s already exists", planPath)
			}
			if err := os.WriteFile(planPath, []byte(starterPlan), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", planPath, err)
			}
			fmt.Fprintf(os.Stdout, "wrote %s\n", planPath)

			checklistPath := project.ChecklistPath()
			if _, err := os.Stat(checklistPath); err == nil {
				fmt.Fprintf(os.Stdout, "%s already exists, left alone\n", checklistPath)
				return nil
			}
			plan, err := releaseplan.Parse([]byte(starterPlan))
			if err != nil {
				return err
			}
			rendered, err := checklist.Generate(plan, checklist.Meta{
				Project: project.Project.Name,
				Date:    time.Now().Format("2006-01-02"),
			}, nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(checklistPath, rendered, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", checklistPath, err)
			}
			fmt.Fprintf(os.Stdout, "wrote %s\n", checklistPath)
			fmt.Fprintf(os.Stdout, "\nedit the plan, then start a release with 'bale release start <version>'\n")
			return nil
		},
	}
}
