// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor implements "bale doctor", the environment diagnosis
// command. It walks the project setup end to end — configuration,
// manifest, git, cache, sealed identity, index reachability — and
// reports what works and what is broken, with the command that fixes
// each failure.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/baleproject/bale/cmd/bale/cli"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/manifest"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/sealed"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

func pass(name, message string) Result { return Result{Name: name, Status: StatusPass, Message: message} }
func fail(name, message string) Result { return Result{Name: name, Status: StatusFail, Message: message} }
func warn(name, message string) Result { return Result{Name: name, Status: StatusWarn, Message: message} }
func skip(name, message string) Result { return Result{Name: name, Status: StatusSkip, Message: message} }

// jsonOutput is the --json shape of the doctor report.
type jsonOutput struct {
	Checks []Result `json:"checks"`
	OK     bool     `json:"ok"`
}

type commandParams struct {
	ConfigPath string `flag:"config" desc:"project configuration file (default: bale.yaml)"`
	cli.JSONOutput
}

// Command returns the "doctor" command.
func Command() *cli.Command {
	var params commandParams
	return &cli.Command{
		Name:    "doctor",
		Summary: "Diagnose the project environment",
		Description: `Check the bale environment end to end: project configuration, the
vendor manifest, the git binary, the archive cache, the sealed
credential identity, and package index reachability.

For each failure, prints the command that fixes it. This is the
"I'm lost" command when bale misbehaves and you don't know where
to start.`,
		Usage: "bale doctor [flags]",
		Examples: []cli.Example{
			{
				Description: "Check project health",
				Command:     "bale doctor",
			},
			{
				Description: "Machine-readable output",
				Command:     "bale doctor --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("doctor", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("usage: bale doctor")
			}
			ctx, cancel := cli.SignalContext()
			defer cancel()
			ctx, timeout := context.WithTimeout(ctx, 30*time.Second)
			defer timeout()
			return runDoctor(ctx, params)
		},
	}
}

// checkState carries results forward so later checks can reuse what
// earlier ones discovered instead of repeating work.
type checkState struct {
	project  *config.Config
	manifest *manifest.Manifest
	index    *pkgindex.Client
}

func runDoctor(ctx context.Context, params commandParams) error {
	var state checkState
	var results []Result

	results = append(results, checkConfiguration(&state, params.ConfigPath))
	results = append(results, checkManifest(&state))
	results = append(results, checkGit())
	results = append(results, checkCache(&state))
	results = append(results, checkIdentity())
	results = append(results, checkIndex(ctx, &state))

	ok := true
	for _, result := range results {
		if result.Status == StatusFail {
			ok = false
		}
	}

	if handled, err := params.EmitJSON(jsonOutput{Checks: results, OK: ok}); handled || err != nil {
		if err != nil {
			return err
		}
		if !ok {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	for _, result := range results {
		fmt.Fprintf(os.Stdout, "[%-4s]  %-22s  %s\n",
			strings.ToUpper(string(result.Status)), result.Name, result.Message)
	}
	fmt.Fprintln(os.Stdout)
	if !ok {
		fmt.Fprintln(os.Stdout, "Some checks failed.")
		return &cli.ExitError{Code: 1}
	}
	fmt.Fprintln(os.Stdout, "All checks passed.")
	return nil
}

func checkConfiguration(state *checkState, configPath string) Result {
	project, err := cli.LoadProject(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail("configuration",
				"no bale.yaml found — create one or point --config/BALE_CONFIG at it")
		}
		return fail("configuration", err.Error())
	}
	state.project = project
	return pass("configuration", fmt.Sprintf("project root %s", project.Root()))
}

func checkManifest(state *checkState) Result {
	if state.project == nil {
		return skip("manifest", "skipped: configuration not loaded")
	}
	path := state.project.ManifestPath()
	m, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return warn("manifest",
				fmt.Sprintf("%s does not exist — \"bale vendor add\" creates it", filepath.Base(path)))
		}
		return fail("manifest", err.Error())
	}
	state.manifest = m
	return pass("manifest", fmt.Sprintf("%d pinned package(s)", len(m.Names())))
}

func checkGit() Result {
	path, err := exec.LookPath("git")
	if err != nil {
		return fail("git", "git binary not found in PATH — release commands need it")
	}
	return pass("git", path)
}

func checkCache(state *checkState) Result {
	if state.project == nil {
		return skip("cache", "skipped: configuration not loaded")
	}
	store, err := cli.OpenCache(state.project)
	if err != nil {
		return fail("cache", fmt.Sprintf("cannot open %s: %v", state.project.Cache.Dir, err))
	}
	// Opening creates the directory; prove it is writable too.
	probe, err := os.CreateTemp(state.project.Cache.Dir, ".doctor-*")
	if err != nil {
		return fail("cache", fmt.Sprintf("%s is not writable: %v", state.project.Cache.Dir, err))
	}
	probe.Close()
	os.Remove(probe.Name())
	stats := store.Stats()
	return pass("cache", fmt.Sprintf("%d entries in %s", stats.Entries, state.project.Cache.Dir))
}

func checkIdentity() Result {
	store, err := sealed.Open()
	if err != nil {
		return fail("sealed identity", err.Error())
	}
	if !store.HasIdentity() {
		return warn("sealed identity",
			"no identity yet — created on first \"bale auth login\"")
	}
	return pass("sealed identity", store.IdentityPath())
}

// checkIndex verifies the package index answers. A project query is
// used rather than the full project list because the list endpoint is
// expensive on large indexes; a 404 still proves reachability.
func checkIndex(ctx context.Context, state *checkState) Result {
	if state.project == nil {
		return skip("index", "skipped: configuration not loaded")
	}
	client, err := cli.IndexClient(state.project)
	if err != nil {
		return fail("index", err.Error())
	}
	state.index = client

	probe := probeName(state.manifest)
	_, err = client.Project(ctx, probe)
	if err != nil && !pkgindex.IsNotFound(err) {
		return fail("index", fmt.Sprintf("%s unreachable: %v", client.BaseURL(), err))
	}
	return pass("index", client.BaseURL())
}

// probeName picks the project queried by the reachability check: the
// first manifest entry when one exists, a well-known name otherwise.
func probeName(m *manifest.Manifest) pkgname.Name {
	if m != nil {
		if names := m.Names(); len(names) > 0 {
			return names[0]
		}
	}
	return pkgname.Canonicalize("requests")
}
