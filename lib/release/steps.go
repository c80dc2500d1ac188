// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgname"
	"github.com/baleproject/bale/lib/releaseplan"
)

// defaultRunTimeout bounds run and check commands that declare no
// timeout of their own.
const defaultRunTimeout = 15 * time.Minute

// defaultCIInterval is the polling interval for ci-wait steps without
// an interval param.
const defaultCIInterval = 30 * time.Second

// outputTailLimit caps the command output kept in the state file.
const outputTailLimit = 4096

// executeStep dispatches a step to its action implementation. The
// step is already expanded; the resolved variables are additionally
// exported into the environment of run and check commands.
func (r *Runner) executeStep(ctx context.Context, state *State, step releaseplan.Step, variables map[string]string) (string, error) {
	switch step.EffectiveAction() {
	case releaseplan.ActionRun:
		return r.runCommand(ctx, step, variables)
	case releaseplan.ActionBranch:
		return r.runBranch(ctx, step)
	case releaseplan.ActionTag:
		return r.runTag(ctx, state, step)
	case releaseplan.ActionCIWait:
		return r.runCIWait(ctx, state, step)
	case releaseplan.ActionPublish:
		return r.runPublish(ctx, state, step)
	default:
		return "", fmt.Errorf("step %q has no executable action", step.ID)
	}
}

// runCommand executes the step's shell command, then its check command
// when one is declared. The check catches commands that exit zero
// without producing the expected result.
func (r *Runner) runCommand(ctx context.Context, step releaseplan.Step, variables map[string]string) (string, error) {
	timeout := defaultRunTimeout
	if step.Timeout != "" {
		parsed, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return "", fmt.Errorf("invalid timeout %q: %w", step.Timeout, err)
		}
		timeout = parsed
	}

	output, err := r.shell(ctx, step.Run, variables, timeout)
	if err != nil {
		return output, err
	}
	if step.Check != "" {
		checkOutput, err := r.shell(ctx, step.Check, variables, timeout)
		if err != nil {
			return checkOutput, fmt.Errorf("check failed: %w", err)
		}
	}
	return output, nil
}

// shell runs a command via /bin/sh -c in the repository directory with
// the resolved variables exported into its environment. Returns the
// tail of the combined output.
func (r *Runner) shell(ctx context.Context, command string, variables map[string]string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = r.repo.Dir()
	cmd.Env = append(os.Environ(), variableEnviron(variables)...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	tail := outputTail(output.Bytes())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tail, fmt.Errorf("timed out after %s", timeout)
		}
		return tail, err
	}
	return tail, nil
}

// variableEnviron renders variables as KEY=VALUE pairs, sorted so the
// child process environment is deterministic.
func variableEnviron(variables map[string]string) []string {
	pairs := make([]string, 0, len(variables))
	for name, value := range variables {
		pairs = append(pairs, name+"="+value)
	}
	sort.Strings(pairs)
	return pairs
}

// outputTail keeps the end of a command's output, which is where
// failures explain themselves. Truncation lands on a line boundary.
func outputTail(output []byte) string {
	text := strings.TrimRight(string(output), "\n")
	if len(text) <= outputTailLimit {
		return text
	}
	trimmed := text[len(text)-outputTailLimit:]
	if cut := strings.IndexByte(trimmed, '\n'); cut >= 0 {
		trimmed = trimmed[cut+1:]
	}
	return trimmed
}

// runBranch creates an auxiliary branch. The release branch itself is
// created by Start; branch steps are for extras like backport or docs
// branches. Params: name (required), start (default HEAD), push
// ("true" pushes to the configured remote).
func (r *Runner) runBranch(ctx context.Context, step releaseplan.Step) (string, error) {
	name := step.Params["name"]
	if name == "" {
		return "", fmt.Errorf("branch step %q: params[name] is required", step.ID)
	}
	if err := r.repo.CreateBranch(ctx, name, step.Params["start"]); err != nil {
		return "", err
	}
	lines := []string{"created branch " + name}
	if step.Params["push"] == "true" {
		if err := r.repo.Push(ctx, r.project.Release.Remote, name); err != nil {
			return strings.Join(lines, "\n"), err
		}
		lines = append(lines, "pushed to "+r.project.Release.Remote)
	}
	return strings.Join(lines, "\n"), nil
}

// runTag creates the release tag. Params: name (default the release
// tag), message (default "Release <version>"), sign (overrides the
// project config), push.
func (r *Runner) runTag(ctx context.Context, state *State, step releaseplan.Step) (string, error) {
	name := step.Params["name"]
	if name == "" {
		name = state.Tag
	}
	message := step.Params["message"]
	if message == "" {
		message = "Release " + state.Version
	}
	sign := r.project.Release.Sign
	if value, ok := step.Params["sign"]; ok {
		sign = value == "true"
	}
	if err := r.repo.Tag(ctx, name, message, sign); err != nil {
		return "", err
	}
	lines := []string{"tagged " + name}
	if step.Params["push"] == "true" {
		if err := r.repo.PushTag(ctx, r.project.Release.Remote, name); err != nil {
			return strings.Join(lines, "\n"), err
		}
		lines = append(lines, "pushed to "+r.project.Release.Remote)
	}
	return strings.Join(lines, "\n"), nil
}

// runCIWait blocks until the forge reports CI green for the release
// branch, or a check fails. Params: interval (poll spacing, default
// 30s). The step timeout bounds the whole wait.
func (r *Runner) runCIWait(ctx context.Context, state *State, step releaseplan.Step) (string, error) {
	if r.forge == nil {
		return "", fmt.Errorf("ci-wait step %q: no forge configured", step.ID)
	}
	client, err := r.forge()
	if err != nil {
		return "", fmt.Errorf("ci-wait step %q: %w", step.ID, err)
	}
	interval := defaultCIInterval
	if value := step.Params["interval"]; value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return "", fmt.Errorf("invalid interval %q: %w", value, err)
		}
		interval = parsed
	}
	if step.Timeout != "" {
		timeout, err := time.ParseDuration(step.Timeout)
		if err != nil {
			return "", fmt.Errorf("invalid timeout %q: %w", step.Timeout, err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := client.WaitForChecks(ctx, state.Branch, interval); err != nil {
		return "", err
	}
	return "checks passed for " + state.Branch, nil
}

// runPublish uploads the release artifacts to the package index.
// Params: artifacts (comma-separated globs, overriding the project
// configuration). Globs resolve relative to the repository root.
func (r *Runner) runPublish(ctx context.Context, state *State, step releaseplan.Step) (string, error) {
	if r.index == nil {
		return "", fmt.Errorf("publish step %q: no index client configured", step.ID)
	}
	projectName := r.project.Project.Name
	if projectName == "" {
		return "", fmt.Errorf("publish step %q: project.name is not configured", step.ID)
	}
	if err := pkgname.Check(projectName); err != nil {
		return "", fmt.Errorf("publish step %q: %w", step.ID, err)
	}

	patterns := r.project.Release.Artifacts
	if value := step.Params["artifacts"]; value != "" {
		patterns = nil
		for _, pattern := range strings.Split(value, ",") {
			if pattern = strings.TrimSpace(pattern); pattern != "" {
				patterns = append(patterns, pattern)
			}
		}
	}
	if len(patterns) == 0 {
		return "", fmt.Errorf("publish step %q: no artifact patterns configured", step.ID)
	}

	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(r.repo.Dir(), pattern))
		if err != nil {
			return "", fmt.Errorf("bad artifact pattern %q: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no artifacts match %s", strings.Join(patterns, ", "))
	}
	sort.Strings(paths)

	client, err := r.index()
	if err != nil {
		return "", fmt.Errorf("publish step %q: %w", step.ID, err)
	}

	var lines []string
	for _, path := range paths {
		meta := pkgindex.UploadMetadata{
			Name:     pkgname.Canonicalize(projectName),
			Version:  state.Version,
			Filetype: "sdist",
			Summary:  r.project.Project.Summary,
		}
		if strings.HasSuffix(path, ".whl") {
			meta.Filetype = "bdist_wheel"
			meta.PyVersion = wheelPyVersion(filepath.Base(path))
		}
		if err := client.Upload(ctx, path, meta); err != nil {
			return strings.Join(lines, "\n"), fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
		}
		lines = append(lines, "uploaded "+filepath.Base(path))
	}
	return strings.Join(lines, "\n"), nil
}

// wheelPyVersion extracts the python tag from a wheel filename
// (name-version[-build]-python-abi-platform.whl).
func wheelPyVersion(filename string) string {
	stem := strings.TrimSuffix(filename, ".whl")
	parts := strings.Split(stem, "-")
	if len(parts) < 5 {
		return "py3"
	}
	return parts[len(parts)-3]
}
