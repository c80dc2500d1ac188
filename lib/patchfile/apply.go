// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package patchfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options controls Apply.
type Options struct {
	// Strip is the number of leading path components removed from
	// header paths, as in patch -p. Git-style a/ b/ patches use 1.
	Strip int
	// DryRun verifies that every hunk lands without writing anything.
	DryRun bool
	// Reverse applies the patch backwards, undoing a prior Apply.
	Reverse bool
}

// HunkStatus reports what Apply did with one hunk.
type HunkStatus int

const (
	// Applied means the hunk matched and its changes were made.
	Applied HunkStatus = iota
	// AlreadyApplied means the target already contains the hunk's
	// result; nothing was changed.
	AlreadyApplied
)

func (s HunkStatus) String() string {
	if s == AlreadyApplied {
		return "already applied"
	}
	return "applied"
}

// HunkResult is the outcome for a single hunk.
type HunkResult struct {
	// Offset is how many lines from the stated position the hunk
	// matched. Zero means it landed exactly where the patch said.
	Offset int
	Status HunkStatus
}

// FileResult is the outcome for one file of a patch.
type FileResult struct {
	// Path is relative to the Apply root, after stripping.
	Path    string
	Op      FileOp
	Hunks   []HunkResult
	Changed bool
}

// Result is the outcome of applying a whole patch.
type Result struct {
	Files []FileResult
}

// Changed reports whether any file was (or, under DryRun, would be)
// modified.
func (r *Result) Changed() bool {
	for _, f := range r.Files {
		if f.Changed {
			return true
		}
	}
	return false
}

// Reversed returns the patch with old and new sides swapped, so that
// applying it undoes the original.
func (p *Patch) Reversed() *Patch {
	out := &Patch{Files: make([]FilePatch, len(p.Files))}
	for i, f := range p.Files {
		out.Files[i] = f.Reversed()
	}
	return out
}

// Reversed returns the file patch with old and new sides swapped.
func (fp FilePatch) Reversed() FilePatch {
	out := FilePatch{OldPath: fp.NewPath, NewPath: fp.OldPath}
	switch fp.Op {
	case OpCreate:
		out.Op = OpDelete
	case OpDelete:
		out.Op = OpCreate
	default:
		out.Op = OpModify
	}
	out.Hunks = make([]Hunk, len(fp.Hunks))
	for i, h := range fp.Hunks {
		rev := Hunk{
			OldStart: h.NewStart,
			OldLines: h.NewLines,
			NewStart: h.OldStart,
			NewLines: h.OldLines,
			Section:  h.Section,
			Lines:    make([]Line, len(h.Lines)),
		}
		for j, line := range h.Lines {
			switch line.Kind {
			case Add:
				line.Kind = Remove
			case Remove:
				line.Kind = Add
			}
			rev.Lines[j] = line
		}
		out.Hunks[i] = rev
	}
	return out
}

// Apply applies the patch to files under root. Each file is rewritten
// atomically; a hunk that cannot be placed fails the whole call with
// the target left untouched, though files patched earlier in the same
// call stay patched.
func Apply(root string, patch *Patch, opts Options) (*Result, error) {
	if opts.Reverse {
		patch = patch.Reversed()
	}
	result := &Result{}
	for _, fp := range patch.Files {
		rel := fp.Path(opts.Strip)
		if !filepath.IsLocal(rel) {
			return result, fmt.Errorf("patch target %q escapes the root", rel)
		}
		fileResult, err := applyFile(filepath.Join(root, rel), fp, opts.DryRun)
		fileResult.Path = rel
		result.Files = append(result.Files, fileResult)
		if err != nil {
			return result, fmt.Errorf("%s: %w", rel, err)
		}
	}
	return result, nil
}

func applyFile(path string, fp FilePatch, dryRun bool) (FileResult, error) {
	result := FileResult{Op: fp.Op}
	switch fp.Op {
	case OpCreate:
		return applyCreate(path, fp, dryRun)
	case OpDelete:
		return applyDelete(path, fp, dryRun)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("read target: %w", err)
	}
	patched, hunks, err := ApplyText(content, fp)
	if err != nil {
		return result, err
	}
	result.Hunks = hunks
	result.Changed = !bytes.Equal(patched, content)
	if !result.Changed || dryRun {
		return result, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return result, fmt.Errorf("stat target: %w", err)
	}
	if err := writeAtomic(path, patched, info.Mode().Perm()); err != nil {
		return result, err
	}
	return result, nil
}

func applyCreate(path string, fp FilePatch, dryRun bool) (FileResult, error) {
	result := FileResult{Op: OpCreate}
	content := renderNewSide(fp)
	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, content) {
			result.Hunks = alreadyApplied(len(fp.Hunks))
			return result, nil
		}
		return result, fmt.Errorf("create target already exists with different content")
	}
	result.Hunks = applied(len(fp.Hunks))
	result.Changed = true
	if dryRun {
		return result, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return result, fmt.Errorf("create parent directory: %w", err)
	}
	if err := writeAtomic(path, content, 0o644); err != nil {
		return result, err
	}
	return result, nil
}

func applyDelete(path string, fp FilePatch, dryRun bool) (FileResult, error) {
	result := FileResult{Op: OpDelete}
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		result.Hunks = alreadyApplied(len(fp.Hunks))
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("read target: %w", err)
	}
	if !bytes.Equal(existing, renderOldSide(fp)) {
		return result, fmt.Errorf("delete target does not match the patch")
	}
	result.Hunks = applied(len(fp.Hunks))
	result.Changed = true
	if dryRun {
		return result, nil
	}
	if err := os.Remove(path); err != nil {
		return result, fmt.Errorf("remove target: %w", err)
	}
	return result, nil
}

// ApplyText applies a single file's hunks to content and returns the
// patched bytes. Hunks are placed by an offset search around their
// stated position; a hunk whose result is already present is skipped
// and reported as AlreadyApplied.
func ApplyText(content []byte, fp FilePatch) ([]byte, []HunkResult, error) {
	text := parseText(content)
	results := make([]HunkResult, 0, len(fp.Hunks))
	delta := 0
	for i, hunk := range fp.Hunks {
		oldSide, newSide := hunkSides(hunk)
		want := expectedIndex(hunk, delta)

		// A context-free insertion matches any position, so check for
		// its result before placing it or reapplying would duplicate
		// the inserted lines.
		if len(oldSide) == 0 {
			if idx, ok := findLines(text.lines, newSide, want); ok {
				results = append(results, HunkResult{
					Offset: idx - want,
					Status: AlreadyApplied,
				})
				delta += hunk.NewLines - hunk.OldLines
				continue
			}
		}
		if idx, ok := findLines(text.lines, oldSide, want); ok {
			text.splice(idx, len(oldSide), newSide, hunk)
			results = append(results, HunkResult{Offset: idx - want})
			delta += hunk.NewLines - hunk.OldLines
			continue
		}
		if idx, ok := findLines(text.lines, newSide, want); ok {
			results = append(results, HunkResult{
				Offset: idx - want,
				Status: AlreadyApplied,
			})
			delta += hunk.NewLines - hunk.OldLines
			continue
		}
		return nil, results, fmt.Errorf("hunk %d (@@ -%d,%d +%d,%d @@): context not found",
			i+1, hunk.OldStart, hunk.OldLines, hunk.NewStart, hunk.NewLines)
	}
	return text.render(), results, nil
}

// expectedIndex is the zero-based index where a hunk's old side should
// start, adjusted by the line delta of previously applied hunks. A
// zero-count old side addresses the position after the stated line.
func expectedIndex(hunk Hunk, delta int) int {
	if hunk.OldLines == 0 {
		return hunk.OldStart + delta
	}
	return hunk.OldStart - 1 + delta
}

// hunkSides splits hunk lines into the old (context+remove) and new
// (context+add) sides.
func hunkSides(hunk Hunk) (oldSide, newSide []hunkLine) {
	for _, line := range hunk.Lines {
		hl := hunkLine{text: line.Text, noNewline: line.NoNewline}
		switch line.Kind {
		case Context:
			oldSide = append(oldSide, hl)
			newSide = append(newSide, hl)
		case Remove:
			oldSide = append(oldSide, hl)
		case Add:
			newSide = append(newSide, hl)
		}
	}
	return oldSide, newSide
}

type hunkLine struct {
	text      string
	noNewline bool
}

// findLines searches for want as a contiguous run, trying the stated
// index first and then alternating offsets outward until the whole
// file has been scanned.
func findLines(lines []string, want []hunkLine, at int) (int, bool) {
	if len(want) == 0 {
		// A pure insertion has no context to anchor on. Accept the
		// stated position when it is inside the file.
		if at >= 0 && at <= len(lines) {
			return at, true
		}
		return 0, false
	}
	limit := len(lines)
	for offset := 0; offset <= limit; offset++ {
		for _, idx := range []int{at + offset, at - offset} {
			if matchAt(lines, want, idx) {
				return idx, true
			}
			if offset == 0 {
				break
			}
		}
	}
	return 0, false
}

func matchAt(lines []string, want []hunkLine, idx int) bool {
	if idx < 0 || idx+len(want) > len(lines) {
		return false
	}
	for i, w := range want {
		if lines[idx+i] != w.text {
			return false
		}
	}
	return true
}

// fileText is file content split into lines with its newline
// convention remembered, so patched output keeps the original flavor.
type fileText struct {
	lines           []string
	eol             string
	trailingNewline bool
}

func parseText(content []byte) *fileText {
	text := &fileText{eol: "\n", trailingNewline: true}
	s := string(content)
	if s == "" {
		text.trailingNewline = false
		return text
	}
	if n := strings.Count(s, "\n"); n > 0 && strings.Count(s, "\r\n") == n {
		text.eol = "\r\n"
	}
	if !strings.HasSuffix(s, "\n") {
		text.trailingNewline = false
		s += "\n"
	}
	text.lines = strings.Split(s, "\n")
	text.lines = text.lines[:len(text.lines)-1]
	for i, line := range text.lines {
		text.lines[i] = strings.TrimSuffix(line, "\r")
	}
	return text
}

// splice replaces count lines at idx with the new side and updates the
// trailing-newline state when the hunk reaches end of file.
func (t *fileText) splice(idx, count int, newSide []hunkLine, hunk Hunk) {
	replacement := make([]string, len(newSide))
	for i, hl := range newSide {
		replacement[i] = hl.text
	}
	tail := make([]string, len(t.lines[idx+count:]))
	copy(tail, t.lines[idx+count:])
	t.lines = append(t.lines[:idx], append(replacement, tail...)...)

	if idx+len(replacement) == len(t.lines) {
		if len(newSide) > 0 {
			t.trailingNewline = !newSide[len(newSide)-1].noNewline
		} else if len(t.lines) == 0 {
			t.trailingNewline = false
		} else {
			// The old EOF was removed; the preceding line keeps a
			// newline.
			t.trailingNewline = true
		}
	}
}

func (t *fileText) render() []byte {
	if len(t.lines) == 0 {
		return []byte{}
	}
	joined := strings.Join(t.lines, t.eol)
	if t.trailingNewline {
		joined += t.eol
	}
	return []byte(joined)
}

// renderNewSide builds full file content from a creation patch.
func renderNewSide(fp FilePatch) []byte {
	text := &fileText{eol: "\n", trailingNewline: true}
	for _, hunk := range fp.Hunks {
		_, newSide := hunkSides(hunk)
		for _, hl := range newSide {
			text.lines = append(text.lines, hl.text)
			text.trailingNewline = !hl.noNewline
		}
	}
	return text.render()
}

// renderOldSide builds full file content from a deletion patch.
func renderOldSide(fp FilePatch) []byte {
	return renderNewSide(FilePatch{Hunks: fp.Reversed().Hunks})
}

func writeAtomic(path string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".patch-*")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("set mode on temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace target: %w", err)
	}
	return nil
}

func applied(n int) []HunkResult {
	return make([]HunkResult, n)
}

func alreadyApplied(n int) []HunkResult {
	out := make([]HunkResult, n)
	for i := range out {
		out[i].Status = AlreadyApplied
	}
	return out
}
