// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the "bale auth" command group managing the
// sealed token store.
package auth

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/sealed"
)

// Command returns the "auth" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "auth",
		Summary: "Manage stored API tokens",
		Description: `Manage the API tokens bale uses: the package index upload token and
the forge token for CI gates and release publishing.

Tokens are sealed to a locally generated age identity and stored under
the user config directory, so a leaked config backup does not leak the
tokens. CI jobs skip the store entirely by setting BALE_INDEX_TOKEN or
BALE_FORGE_TOKEN; the environment always wins.`,
		Subcommands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			logoutCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Store the index upload token (prompts, no echo)",
				Command:     "bale auth login",
			},
			{
				Description: "Store the forge token from a pipeline secret",
				Command:     "printenv CI_FORGE_TOKEN | bale auth login --forge",
			},
		},
	}
}

type loginParams struct {
	Forge     bool   `flag:"forge"      desc:"store the forge token instead of the index token"`
	TokenFile string `flag:"token-file" desc:"read the token from a file instead of prompting"`
}

func loginCommand() *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Store an API token, sealed to this machine",
		Description: `Seal an API token into the token store. The token is read from
BALE_INDEX_TOKEN (or BALE_FORGE_TOKEN with --forge) when set, from
--token-file, from piped stdin, or from an interactive no-echo
prompt.`,
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("login", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale auth login [--forge]")
			}
			name, label, env := sealed.IndexToken, "index", cli.IndexTokenEnv
			if params.Forge {
				name, label, env = sealed.ForgeToken, "forge", cli.ForgeTokenEnv
			}
			token, err := readToken(label, env, params.TokenFile)
			if err != nil {
				return err
			}
			defer sealed.Zero(token)

			store, err := sealed.Open()
			if err != nil {
				return err
			}
			if err := store.Seal(name, token); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s token sealed in %s\n", label, store.Dir())
			return nil
		},
	}
}

type statusParams struct {
	cli.JSONOutput
}

// authStatus is the JSON shape of "auth status".
type authStatus struct {
	Dir      string `json:"dir"`
	Identity bool   `json:"identity"`
	Index    bool   `json:"index"`
	Forge    bool   `json:"forge"`
}

func statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show which tokens are stored",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale auth status")
			}
			store, err := sealed.Open()
			if err != nil {
				return err
			}
			status := authStatus{
				Dir:      store.Dir(),
				Identity: store.HasIdentity(),
				Index:    store.Exists(sealed.IndexToken),
				Forge:    store.Exists(sealed.ForgeToken),
			}
			if handled, err := params.EmitJSON(status); handled || err != nil {
				return err
			}

			identity := "none (generated on first login)"
			if status.Identity {
				identity = "present"
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "store\t%s\n", status.Dir)
			fmt.Fprintf(writer, "identity\t%s\n", identity)
			fmt.Fprintf(writer, "index\t%s\n", describeToken(status.Index, cli.IndexTokenEnv))
			fmt.Fprintf(writer, "forge\t%s\n", describeToken(status.Forge, cli.ForgeTokenEnv))
			return writer.Flush()
		},
	}
}

type logoutParams struct {
	Forge bool `flag:"forge" desc:"remove the forge token instead of the index token"`
	All   bool `flag:"all"   desc:"remove every stored token"`
}

func logoutCommand() *cli.Command {
	var params logoutParams
	return &cli.Command{
		Name:    "logout",
		Summary: "Remove a stored token",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("logout", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale auth logout [--forge | --all]")
			}
			store, err := sealed.Open()
			if err != nil {
				return err
			}
			if params.All {
				for _, name := range []string{sealed.IndexToken, sealed.ForgeToken} {
					if err := store.Remove(name); err != nil {
						return err
					}
				}
				fmt.Fprintln(os.Stderr, "all tokens removed")
				return nil
			}
			name, label := sealed.IndexToken, "index"
			if params.Forge {
				name, label = sealed.ForgeToken, "forge"
			}
			if !store.Exists(name) {
				fmt.Fprintf(os.Stderr, "no %s token stored\n", label)
				return nil
			}
			if err := store.Remove(name); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s token removed\n", label)
			return nil
		},
	}
}

// readToken obtains a token: the environment first, then an explicit
// file, then piped stdin, then an interactive no-echo prompt.
func readToken(label, env, file string) ([]byte, error) {
	if token := os.Getenv(env); token != "" {
		return []byte(token), nil
	}
	if file != "" && file != "-" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		return trimToken(data, file)
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading token from stdin: %w", err)
		}
		return trimToken(data, "stdin")
	}
	fmt.Fprintf(os.Stderr, "%s token: ", label)
	token, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	return trimToken(token, "prompt")
}

// describeToken renders a token's presence and source: an environment
// override takes precedence over the sealed store.
func describeToken(stored bool, env string) string {
	if os.Getenv(env) != "" {
		return fmt.Sprintf("overridden by %s", env)
	}
	if stored {
		return "present"
	}
	return "none"
}

// trimToken strips trailing newlines (echo pipelines end with one)
// and rejects an empty token.
func trimToken(data []byte, source string) ([]byte, error) {
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty token from %s", source)
	}
	return data, nil
}
