// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package patch

import (
	"fmt"
	"os"
	"strings"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/mdterm"
)

func showCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Render a patch file with syntax highlighting",
		Description: `Print a patch to stdout, highlighted as a unified diff when the
terminal supports color.`,
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: bale patch show <patch-file>")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading patch: %w", err)
			}
			rendered := mdterm.Highlight(string(data), "diff")
			fmt.Fprint(os.Stdout, rendered)
			if !strings.HasSuffix(rendered, "\n") {
				fmt.Fprintln(os.Stdout)
			}
			return nil
		},
	}
}
