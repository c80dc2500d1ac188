// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitcli provides typed access to the git CLI for release
// automation: branching, tagging, pushing, and working-tree checks.
// All commands target a specific repository directory via the -C flag,
// which every Repository method injects — callers never depend on the
// process working directory.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory — callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Command returns an *exec.Cmd for a git command without running it.
// The caller gets full control over Stdin, Stdout, Stderr, and
// SysProcAttr before starting the process. The -C flag targeting
// this repository is automatically prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

// CurrentBranch returns the checked-out branch name. A detached HEAD
// is an error: release steps must run from a named branch.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(output)
	if branch == "HEAD" {
		return "", fmt.Errorf("repository %s is in detached HEAD state", r.dir)
	}
	return branch, nil
}

// CreateBranch creates a branch at the given start point, or at HEAD
// when startPoint is empty. The branch is not checked out.
func (r *Repository) CreateBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := r.Run(ctx, args...)
	return err
}

// Checkout switches the working tree to the given branch or ref.
func (r *Repository) Checkout(ctx context.Context, ref string) error {
	_, err := r.Run(ctx, "checkout", ref)
	return err
}

// Tag creates an annotated tag at HEAD, optionally GPG-signed.
func (r *Repository) Tag(ctx context.Context, name, message string, sign bool) error {
	args := []string{"tag", "-a"}
	if sign {
		args = []string{"tag", "-s"}
	}
	args = append(args, "-m", message, name)
	_, err := r.Run(ctx, args...)
	return err
}

// PushTag pushes one tag to the remote.
func (r *Repository) PushTag(ctx context.Context, remote, name string) error {
	_, err := r.Run(ctx, "push", remote, "refs/tags/"+name)
	return err
}

// Push pushes a branch or refspec to the remote.
func (r *Repository) Push(ctx context.Context, remote, refspec string) error {
	_, err := r.Run(ctx, "push", remote, refspec)
	return err
}

// Status returns the porcelain status of the working tree: one line
// per changed or untracked file, empty when the tree is clean.
func (r *Repository) Status(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(output, "\n"), nil
}

// IsClean reports whether the working tree has no uncommitted changes
// and no untracked files.
func (r *Repository) IsClean(ctx context.Context) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// RevParse resolves a ref to its full object hash.
func (r *Repository) RevParse(ctx context.Context, ref string) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--verify", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HasTag reports whether the named tag exists.
func (r *Repository) HasTag(ctx context.Context, name string) (bool, error) {
	output, err := r.Run(ctx, "tag", "--list", name)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Fetch updates remote-tracking refs from the remote.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.Run(ctx, "fetch", remote)
	return err
}
