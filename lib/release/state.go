// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/baleproject/bale/lib/pkgversion"
)

// Status is the lifecycle state of a single release step.
type Status string

const (
	// StatusPending means the step has not run yet.
	StatusPending Status = "pending"

	// StatusRunning means the step is executing. A state file showing
	// running after the runner process exited means the runner crashed
	// mid-step.
	StatusRunning Status = "running"

	// StatusDone means the step completed successfully, or a manual
	// step was checked off.
	StatusDone Status = "done"

	// StatusFailed means the step ran and failed. Failed steps may be
	// retried.
	StatusFailed Status = "failed"

	// StatusSkipped means the operator skipped the step. Skipped steps
	// satisfy dependencies the same way done ones do.
	StatusSkipped Status = "skipped"
)

// State records the progress of one release. It is persisted as JSON
// under the state directory after every transition, so an interrupted
// release resumes where it stopped.
type State struct {
	// Version is the canonical release version.
	Version string `json:"version"`

	// Branch is the release branch created when the release started.
	Branch string `json:"branch"`

	// Tag is the tag name this release creates.
	Tag string `json:"tag"`

	// StartedAt is when the release started. The DATE variable derives
	// from it, so ${DATE} stays stable across a multi-day release.
	StartedAt time.Time `json:"started_at"`

	// Aborted marks the release as abandoned. The runner refuses to
	// execute steps of an aborted release; the state file remains as a
	// record of how far it got.
	Aborted bool `json:"aborted,omitempty"`

	// Steps maps step IDs to their execution state. Every plan step
	// has an entry from the moment the release starts.
	Steps map[string]*StepState `json:"steps"`
}

// StepState is the recorded state of one step.
type StepState struct {
	// Status is the step's lifecycle state.
	Status Status `json:"status"`

	// StartedAt and FinishedAt bound the step's execution. Nil until
	// the step reaches the corresponding transition. Manual steps have
	// only FinishedAt, set when they are checked off.
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Output holds the tail of the step's combined output (run steps)
	// or a short result description (typed actions).
	Output string `json:"output,omitempty"`

	// Error is the failure message when Status is failed.
	Error string `json:"error,omitempty"`

	// SkipReason is the operator's reason when Status is skipped.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Satisfied reports whether the step no longer blocks its dependents.
func (s *StepState) Satisfied() bool {
	return s.Status == StatusDone || s.Status == StatusSkipped
}

// Progress counts the steps that are done or skipped against the
// total.
func (st *State) Progress() (complete, total int) {
	for _, step := range st.Steps {
		if step.Satisfied() {
			complete++
		}
	}
	return complete, len(st.Steps)
}

// Complete reports whether every step is done or skipped.
func (st *State) Complete() bool {
	complete, total := st.Progress()
	return complete == total
}

// LoadState reads a release state file.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if state.Steps == nil {
		state.Steps = make(map[string]*StepState)
	}
	return &state, nil
}

// saveState writes the state file atomically, creating the state
// directory if needed.
func saveState(path string, state *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding release state: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// ListStates returns the versions with state files under dir, oldest
// version first. A missing directory is an empty list.
func ListStates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(name, ".json"))
	}
	sort.Slice(versions, func(i, j int) bool {
		a, errA := pkgversion.Parse(versions[i])
		b, errB := pkgversion.Parse(versions[j])
		if errA != nil || errB != nil {
			return versions[i] < versions[j]
		}
		return pkgversion.Less(a, b)
	})
	return versions, nil
}
