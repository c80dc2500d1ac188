// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/vendoring"
)

// licensesParams holds the parameters for the vendor licenses command.
type licensesParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
	cli.JSONOutput
}

// licensesCommand returns the "licenses" subcommand that prints the
// license report.
func licensesCommand() *cli.Command {
	var params licensesParams

	return &cli.Command{
		Name:    "licenses",
		Summary: "Show the license report of the vendored tree",
		Description: `Show the license report the last sync wrote: per vendored package,
the license files that were collected and where they came from —
"archive" when the release archive carried them, "fallback" when they
were fetched from a configured URL because the archive had none.

The report reflects the tree as last synced. A package with no listed
files vendored without any license text; that usually wants a fallback
URL in the project configuration.`,
		Usage: "bale vendor licenses [flags]",
		Examples: []cli.Example{
			{
				Description: "Audit the vendored licenses",
				Command:     "bale vendor licenses",
			},
			{
				Description: "Export the report",
				Command:     "bale vendor licenses --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("licenses", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale vendor licenses [flags]")
			}
			project, err := cli.LoadProject(params.ConfigPath)
			if err != nil {
				return err
			}
			records, err := vendoring.ReadReport(project.DestinationPath())
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no license report in %s (run 'bale vendor sync' first)", project.DestinationPath())
			}
			if err != nil {
				return err
			}

			if handled, err := params.EmitJSON(records); handled || err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "PACKAGE\tVERSION\tSOURCE\tFILES\n")
			for _, record := range records {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					record.Package, record.Version, record.Source, strings.Join(record.Files, ", "))
			}
			return writer.Flush()
		},
	}
}
