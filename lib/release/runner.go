// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package release drives a plan through an actual release: it creates
// the release branch, executes steps in dependency order, records
// every transition in a per-version state file, and keeps the markdown
// checklist in step with the state. Each transition is persisted
// before and after a step executes, so an interrupted release resumes
// where it stopped.
//
// Manual steps are never executed. The runner stops in front of them
// and the operator completes the task by hand, then records it with
// Check or by ticking the checklist box and syncing.
package release

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/baleproject/bale/lib/clock"
	"github.com/baleproject/bale/lib/config"
	"github.com/baleproject/bale/lib/forge"
	"github.com/baleproject/bale/lib/gitcli"
	"github.com/baleproject/bale/lib/pkgindex"
	"github.com/baleproject/bale/lib/pkgversion"
	"github.com/baleproject/bale/lib/releaseplan"
)

// Config configures a Runner.
type Config struct {
	// Plan is the release plan to execute. Required. NewRunner
	// validates it and rejects plans with issues.
	Plan *releaseplan.Plan

	// Project is the loaded project configuration. Required.
	Project *config.Config

	// Repo is the git repository the release operates on. Required.
	Repo *gitcli.Repository

	// Forge returns the forge client for ci-wait steps. Deferred so
	// the forge token is only unsealed when a ci-wait step actually
	// runs. Optional; ci-wait steps fail without it.
	Forge func() (*forge.Client, error)

	// Index returns the package index client for publish steps.
	// Deferred like Forge. Optional; publish steps fail without it.
	Index func() (*pkgindex.Client, error)

	// Variables are explicit variable values (e.g., --var flags).
	Variables map[string]string

	// Environ looks up environment variables during variable
	// resolution. Defaults to os.Getenv.
	Environ func(string) string

	// Logger is used for structured logging. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock
}

// Runner executes a release plan against a repository.
type Runner struct {
	plan      *releaseplan.Plan
	ordered   []releaseplan.Step
	project   *config.Config
	repo      *gitcli.Repository
	forge     func() (*forge.Client, error)
	index     func() (*pkgindex.Client, error)
	variables map[string]string
	environ   func(string) string
	logger    *slog.Logger
	clock     clock.Clock
}

// NewRunner creates a Runner from the given configuration. The plan is
// validated and ordered here, so a broken plan is rejected before any
// release state exists rather than halfway through a release.
func NewRunner(c Config) (*Runner, error) {
	if c.Plan == nil {
		return nil, fmt.Errorf("release: Plan is required")
	}
	if c.Project == nil {
		return nil, fmt.Errorf("release: Project is required")
	}
	if c.Repo == nil {
		return nil, fmt.Errorf("release: Repo is required")
	}
	if issues := releaseplan.Validate(c.Plan); len(issues) > 0 {
		return nil, fmt.Errorf("release plan has validation errors:\n  %s", strings.Join(issues, "\n  "))
	}
	ordered, err := c.Plan.Order()
	if err != nil {
		return nil, fmt.Errorf("release plan: %w", err)
	}
	environ := c.Environ
	if environ == nil {
		environ = os.Getenv
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Runner{
		plan:      c.Plan,
		ordered:   ordered,
		project:   c.Project,
		repo:      c.Repo,
		forge:     c.Forge,
		index:     c.Index,
		variables: c.Variables,
		environ:   environ,
		logger:    logger,
		clock:     clk,
	}, nil
}

// StatePath returns the state file path for a version.
func (r *Runner) StatePath(version string) string {
	return filepath.Join(r.project.StateDirPath(), version+".json")
}

// Start begins a release: it checks the version against the plan,
// verifies the working tree is clean, creates and checks out the
// release branch, and writes the initial state file with every step
// pending.
//
// Start runs no steps. It fails when a state file for the version
// already exists — a stopped release is picked up with Load, not
// restarted.
func (r *Runner) Start(ctx context.Context, version string) (*State, error) {
	parsed, err := pkgversion.Parse(version)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", version, err)
	}
	canonical := parsed.String()

	allowed, err := r.plan.AllowsVersion(parsed)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("version %s does not satisfy the plan's version requirements (%s)", canonical, r.plan.Version)
	}

	path := r.StatePath(canonical)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("release %s already started (state at %s)", canonical, path)
	}

	clean, err := r.repo.IsClean(ctx)
	if err != nil {
		return nil, err
	}
	if !clean {
		return nil, fmt.Errorf("working tree has uncommitted changes; commit or stash them before releasing")
	}

	branch := r.project.Release.BranchPrefix + canonical
	tag := r.project.Release.TagPrefix + canonical
	if err := r.repo.CreateBranch(ctx, branch, ""); err != nil {
		return nil, fmt.Errorf("creating release branch: %w", err)
	}
	if err := r.repo.Checkout(ctx, branch); err != nil {
		return nil, fmt.Errorf("checking out %s: %w", branch, err)
	}

	state := &State{
		Version:   canonical,
		Branch:    branch,
		Tag:       tag,
		StartedAt: r.clock.Now().UTC(),
		Steps:     make(map[string]*StepState, len(r.plan.Steps)),
	}
	for _, step := range r.plan.Steps {
		state.Steps[step.ID] = &StepState{Status: StatusPending}
	}
	if err := r.save(state); err != nil {
		return nil, err
	}
	r.logger.Info("release started",
		"version", canonical,
		"branch", branch,
		"steps", len(r.plan.Steps),
	)
	return state, nil
}

// Load reads the state of a previously started release.
func (r *Runner) Load(version string) (*State, error) {
	parsed, err := pkgversion.Parse(version)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", version, err)
	}
	path := r.StatePath(parsed.String())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no release state for %s (has it been started?)", parsed.String())
	}
	return LoadState(path)
}

// List returns the versions with release state, oldest first.
func (r *Runner) List() ([]string, error) {
	return ListStates(r.project.StateDirPath())
}

func (r *Runner) save(state *State) error {
	return saveState(r.StatePath(state.Version), state)
}

// Variables resolves the plan's variables for this release. The
// release context (VERSION, BRANCH, TAG, DATE) always wins; DATE
// derives from the state's start time so it stays stable for the whole
// release.
func (r *Runner) Variables(state *State) (map[string]string, error) {
	return releaseplan.ResolveVariables(r.plan.Variables, r.variables, r.environ, releaseplan.Context{
		Version: state.Version,
		Branch:  state.Branch,
		Tag:     state.Tag,
		Date:    state.StartedAt.Format("2006-01-02"),
	})
}

// Next returns the first step that is ready: pending, with every
// dependency done or skipped. ok is false when nothing is ready — the
// release is complete, blocked on a failure, or waiting on a step
// marked running.
func (r *Runner) Next(state *State) (releaseplan.Step, bool) {
	for _, step := range r.ordered {
		stepState := state.Steps[step.ID]
		if stepState == nil || stepState.Status != StatusPending {
			continue
		}
		if r.blockedBy(state, step) == "" {
			return step, true
		}
	}
	return releaseplan.Step{}, false
}

// blockedBy returns the ID of the first unsatisfied dependency, or ""
// when the step is unblocked.
func (r *Runner) blockedBy(state *State, step releaseplan.Step) string {
	for _, dependency := range step.After {
		if stepState := state.Steps[dependency]; stepState == nil || !stepState.Satisfied() {
			return dependency
		}
	}
	return ""
}

// Run executes pending automated steps in plan order until the plan
// completes, a manual step is next, or a step fails. Steps are taken
// strictly in order: the runner does not jump past a pending manual
// step even when a later step's dependencies would allow it, because a
// release checklist is worked top to bottom. Returns the IDs of the
// steps completed this call.
func (r *Runner) Run(ctx context.Context, state *State) ([]string, error) {
	var completed []string
	for {
		step, ok := r.Next(state)
		if !ok || step.EffectiveAction() == releaseplan.ActionManual {
			return completed, nil
		}
		if err := r.RunStep(ctx, state, step.ID, false); err != nil {
			return completed, err
		}
		completed = append(completed, step.ID)
	}
}

// RunStep executes a single step by ID. force reruns a step that is
// already done, skipped, or stuck in running; dependencies must be
// satisfied regardless. Manual steps are never executed — they return
// a *ManualStepError pointing the operator at Check.
func (r *Runner) RunStep(ctx context.Context, state *State, id string, force bool) error {
	if state.Aborted {
		return fmt.Errorf("release %s is aborted", state.Version)
	}
	step, ok := r.plan.Step(id)
	if !ok {
		return fmt.Errorf("plan has no step %q", id)
	}
	stepState := state.Steps[id]
	if stepState == nil {
		stepState = &StepState{Status: StatusPending}
		state.Steps[id] = stepState
	}
	switch stepState.Status {
	case StatusDone, StatusSkipped:
		if !force {
			return fmt.Errorf("step %q is already %s (rerun with force)", id, stepState.Status)
		}
	case StatusRunning:
		if !force {
			return fmt.Errorf("step %q is marked running; if the previous run crashed, rerun with force", id)
		}
	}
	if blocked := r.blockedBy(state, step); blocked != "" {
		status := StatusPending
		if blockedState := state.Steps[blocked]; blockedState != nil {
			status = blockedState.Status
		}
		return fmt.Errorf("step %q is blocked: dependency %q is %s", id, blocked, status)
	}
	if step.EffectiveAction() == releaseplan.ActionManual {
		return &ManualStepError{Step: step}
	}

	variables, err := r.Variables(state)
	if err != nil {
		return err
	}
	expanded, err := releaseplan.ExpandStep(step, variables)
	if err != nil {
		return err
	}

	started := r.clock.Now().UTC()
	stepState.Status = StatusRunning
	stepState.StartedAt = &started
	stepState.FinishedAt = nil
	stepState.Output = ""
	stepState.Error = ""
	stepState.SkipReason = ""
	if err := r.save(state); err != nil {
		return err
	}
	r.logger.Info("step started", "step", id, "action", string(expanded.EffectiveAction()))

	output, runErr := r.executeStep(ctx, state, expanded, variables)
	finished := r.clock.Now().UTC()
	stepState.FinishedAt = &finished
	stepState.Output = output
	if runErr != nil {
		stepState.Status = StatusFailed
		stepState.Error = runErr.Error()
		if saveErr := r.save(state); saveErr != nil {
			r.logger.Warn("saving release state", "error", saveErr)
		}
		return fmt.Errorf("step %q failed: %w", id, runErr)
	}
	stepState.Status = StatusDone
	if err := r.save(state); err != nil {
		return err
	}
	r.logger.Info("step completed", "step", id, "duration", finished.Sub(started))
	r.updateChecklist(state, id, true)
	return nil
}

// Check marks a manual step as done. Only manual steps can be checked
// off — automated steps run. Dependencies are not enforced: a human
// recording a task they already completed is stating a fact, not
// requesting work. Checking an already-done step is a no-op.
func (r *Runner) Check(state *State, id string) error {
	if state.Aborted {
		return fmt.Errorf("release %s is aborted", state.Version)
	}
	step, ok := r.plan.Step(id)
	if !ok {
		return fmt.Errorf("plan has no step %q", id)
	}
	if step.EffectiveAction() != releaseplan.ActionManual {
		return fmt.Errorf("step %q is not manual; run it instead", id)
	}
	stepState := state.Steps[id]
	if stepState == nil {
		stepState = &StepState{}
		state.Steps[id] = stepState
	}
	if stepState.Status == StatusDone {
		return nil
	}
	finished := r.clock.Now().UTC()
	stepState.Status = StatusDone
	stepState.FinishedAt = &finished
	stepState.Error = ""
	stepState.SkipReason = ""
	if err := r.save(state); err != nil {
		return err
	}
	r.logger.Info("manual step checked off", "step", id)
	r.updateChecklist(state, id, true)
	return nil
}

// Skip marks a step as skipped. Skipped steps satisfy their dependents
// like done ones. Done steps cannot be skipped.
func (r *Runner) Skip(state *State, id, reason string) error {
	if state.Aborted {
		return fmt.Errorf("release %s is aborted", state.Version)
	}
	if _, ok := r.plan.Step(id); !ok {
		return fmt.Errorf("plan has no step %q", id)
	}
	stepState := state.Steps[id]
	if stepState == nil {
		stepState = &StepState{}
		state.Steps[id] = stepState
	}
	if stepState.Status == StatusDone {
		return fmt.Errorf("step %q is already done", id)
	}
	finished := r.clock.Now().UTC()
	stepState.Status = StatusSkipped
	stepState.FinishedAt = &finished
	stepState.SkipReason = reason
	stepState.Error = ""
	if err := r.save(state); err != nil {
		return err
	}
	r.logger.Info("step skipped", "step", id, "reason", reason)
	r.updateChecklist(state, id, true)
	return nil
}

// Abort marks the release as abandoned. The state file remains as a
// record, and subsequent step operations are refused. Starting the
// same version again still fails on the existing state file; delete it
// to truly start over.
func (r *Runner) Abort(state *State) error {
	if state.Aborted {
		return nil
	}
	state.Aborted = true
	if err := r.save(state); err != nil {
		return err
	}
	r.logger.Info("release aborted", "version", state.Version)
	return nil
}

// ManualStepError reports that a step requires human action. The
// runner never executes manual steps; the operator completes the task
// and checks it off.
type ManualStepError struct {
	Step releaseplan.Step
}

func (e *ManualStepError) Error() string {
	return fmt.Sprintf("step %q is manual: %s (complete it by hand, then check it off)", e.Step.ID, e.Step.Name)
}
