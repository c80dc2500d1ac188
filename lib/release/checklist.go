// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/baleproject/bale/lib/checklist"
	"github.com/baleproject/bale/lib/releaseplan"
)

// WriteChecklist generates the markdown checklist for the release and
// writes it to the configured path, replacing what was there. Step
// names and descriptions are expanded first, so the checklist reads
// with concrete values. Steps already done or skipped render checked.
func (r *Runner) WriteChecklist(state *State) error {
	variables, err := r.Variables(state)
	if err != nil {
		return err
	}
	expanded := *r.plan
	expanded.Steps = make([]releaseplan.Step, len(r.plan.Steps))
	for i, step := range r.plan.Steps {
		if expanded.Steps[i], err = releaseplan.ExpandStep(step, variables); err != nil {
			return err
		}
	}

	done := make(map[string]bool, len(state.Steps))
	for id, stepState := range state.Steps {
		if stepState.Satisfied() {
			done[id] = true
		}
	}

	rendered, err := checklist.Generate(&expanded, checklist.Meta{
		Project: r.projectName(),
		Version: state.Version,
		Date:    state.StartedAt.Format("2006-01-02"),
	}, done)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.project.ChecklistPath(), rendered)
}

// projectName names the project for checklist titles, falling back to
// the project directory when project.name is not configured.
func (r *Runner) projectName() string {
	if r.project.Project.Name != "" {
		return r.project.Project.Name
	}
	return filepath.Base(r.project.Root())
}

// updateChecklist ticks (or unticks) the checklist item for a step,
// preserving any hand edits to the file. A missing checklist is
// regenerated. Update failures are warnings: checklist drift never
// fails a release step.
func (r *Runner) updateChecklist(state *State, stepID string, checked bool) {
	path := r.project.ChecklistPath()
	source, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := r.WriteChecklist(state); err != nil {
			r.logger.Warn("writing checklist", "error", err)
		}
		return
	}
	if err != nil {
		r.logger.Warn("reading checklist", "path", path, "error", err)
		return
	}
	document := checklist.Parse(source)
	item, ok := itemForStep(document, stepID)
	if !ok {
		r.logger.Warn("checklist has no item for step", "step", stepID, "path", path)
		return
	}
	if err := document.SetChecked(item.ID, checked); err != nil {
		r.logger.Warn("updating checklist", "step", stepID, "error", err)
		return
	}
	if err := writeFileAtomic(path, document.Source()); err != nil {
		r.logger.Warn("writing checklist", "path", path, "error", err)
	}
}

// itemForStep finds the checklist item whose reference names the step.
func itemForStep(document *checklist.Document, stepID string) (checklist.Item, bool) {
	for _, section := range document.Sections {
		for _, item := range section.Items {
			if item.Ref() == stepID {
				return item, true
			}
		}
	}
	return checklist.Item{}, false
}

// SyncChecklist folds manual checkbox edits back into the release
// state: a ticked manual step becomes done, an unticked one reverts to
// pending. Automated steps are owned by the runner and ignored here —
// unticking a box does not undo a build. Returns the IDs of the steps
// that changed.
func (r *Runner) SyncChecklist(state *State) ([]string, error) {
	path := r.project.ChecklistPath()
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	document := checklist.Parse(source)

	var changed []string
	for _, step := range r.ordered {
		if step.EffectiveAction() != releaseplan.ActionManual {
			continue
		}
		item, ok := itemForStep(document, step.ID)
		if !ok {
			continue
		}
		stepState := state.Steps[step.ID]
		if stepState == nil {
			stepState = &StepState{Status: StatusPending}
			state.Steps[step.ID] = stepState
		}
		switch {
		case item.Checked && stepState.Status == StatusPending:
			finished := r.clock.Now().UTC()
			stepState.Status = StatusDone
			stepState.FinishedAt = &finished
			changed = append(changed, step.ID)
		case !item.Checked && stepState.Status == StatusDone:
			stepState.Status = StatusPending
			stepState.FinishedAt = nil
			changed = append(changed, step.ID)
		}
	}
	if len(changed) > 0 {
		if err := r.save(state); err != nil {
			return nil, err
		}
		r.logger.Info("checklist synced", "changed", len(changed))
	}
	return changed, nil
}

// writeFileAtomic writes data to a temporary file in the target's
// directory and renames it into place, so readers never observe a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
