// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package patchfile parses and applies unified diffs. It understands
// plain "--- / +++" patches and tolerates git's extended headers, and
// applies hunks with an offset search so a patch still lands when the
// target has drifted by whole lines. Application is atomic per file:
// a hunk failure leaves the target untouched.
package patchfile

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind classifies one hunk line.
type LineKind int

const (
	Context LineKind = iota
	Add
	Remove
)

// Line is one hunk line, without its newline. NoNewline marks the
// "\ No newline at end of file" annotation on the preceding line.
type Line struct {
	Kind      LineKind
	Text      string
	NoNewline bool
}

// Hunk is one "@@" block.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	// Section is the optional text after the closing "@@".
	Section string
	Lines   []Line
}

// FileOp is what a FilePatch does to its target.
type FileOp int

const (
	OpModify FileOp = iota
	OpCreate
	OpDelete
)

func (op FileOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpDelete:
		return "delete"
	default:
		return "modify"
	}
}

// FilePatch is the set of hunks for one target file.
type FilePatch struct {
	// OldPath and NewPath are as written in the headers, prefix
	// ("a/", "b/") included. "/dev/null" marks creation or deletion.
	OldPath string
	NewPath string
	Op      FileOp
	Hunks   []Hunk
}

// Path returns the target path with strip leading components removed.
// For deletions the old path is used, otherwise the new path.
func (fp FilePatch) Path(strip int) string {
	raw := fp.NewPath
	if fp.Op == OpDelete {
		raw = fp.OldPath
	}
	parts := strings.Split(raw, "/")
	if strip >= len(parts) {
		return parts[len(parts)-1]
	}
	return strings.Join(parts[strip:], "/")
}

// Patch is a parsed unified diff.
type Patch struct {
	Files []FilePatch
}

const devNull = "/dev/null"

// Parse parses unified diff bytes. Text before the first file header
// and between files (git extended headers, mail preamble) is ignored.
func Parse(data []byte) (*Patch, error) {
	lines := splitLines(string(data))
	patch := &Patch{}

	for i := 0; i < len(lines); {
		if !strings.HasPrefix(lines[i], "--- ") {
			i++
			continue
		}
		file, next, err := parseFile(lines, i)
		if err != nil {
			return nil, err
		}
		patch.Files = append(patch.Files, file)
		i = next
	}
	if len(patch.Files) == 0 {
		return nil, fmt.Errorf("no file patches found")
	}
	return patch, nil
}

// parseFile parses one file section starting at the "---" header.
func parseFile(lines []string, start int) (FilePatch, int, error) {
	file := FilePatch{OldPath: headerPath(lines[start])}
	i := start + 1
	if i >= len(lines) || !strings.HasPrefix(lines[i], "+++ ") {
		return file, 0, fmt.Errorf("line %d: --- header without +++ header", start+1)
	}
	file.NewPath = headerPath(lines[i])
	i++

	switch {
	case file.OldPath == devNull && file.NewPath == devNull:
		return file, 0, fmt.Errorf("line %d: both sides are /dev/null", start+1)
	case file.OldPath == devNull:
		file.Op = OpCreate
	case file.NewPath == devNull:
		file.Op = OpDelete
	default:
		file.Op = OpModify
	}

	for i < len(lines) && strings.HasPrefix(lines[i], "@@") {
		hunk, next, err := parseHunk(lines, i)
		if err != nil {
			return file, 0, err
		}
		file.Hunks = append(file.Hunks, hunk)
		i = next
	}
	if len(file.Hunks) == 0 {
		return file, 0, fmt.Errorf("line %d: file header without hunks", start+1)
	}
	return file, i, nil
}

// headerPath extracts the path from a "--- " or "+++ " header line,
// dropping a tab-separated timestamp when present.
func headerPath(header string) string {
	path := header[4:]
	if tab := strings.IndexByte(path, '\t'); tab >= 0 {
		path = path[:tab]
	}
	return strings.TrimSpace(path)
}

// parseHunk parses one "@@" block starting at index start.
func parseHunk(lines []string, start int) (Hunk, int, error) {
	hunk, err := parseHunkHeader(lines[start])
	if err != nil {
		return hunk, 0, fmt.Errorf("line %d: %w", start+1, err)
	}

	oldSeen, newSeen := 0, 0
	i := start + 1
	for i < len(lines) && (oldSeen < hunk.OldLines || newSeen < hunk.NewLines) {
		raw := lines[i]
		var line Line
		switch {
		case strings.HasPrefix(raw, " "):
			line = Line{Kind: Context, Text: raw[1:]}
			oldSeen++
			newSeen++
		case strings.HasPrefix(raw, "+"):
			line = Line{Kind: Add, Text: raw[1:]}
			newSeen++
		case strings.HasPrefix(raw, "-"):
			line = Line{Kind: Remove, Text: raw[1:]}
			oldSeen++
		case strings.HasPrefix(raw, `\`):
			// Annotation for the previous line; consumes no counts.
			if len(hunk.Lines) == 0 {
				return hunk, 0, fmt.Errorf("line %d: newline annotation without a line", i+1)
			}
			hunk.Lines[len(hunk.Lines)-1].NoNewline = true
			i++
			continue
		case raw == "":
			// Some producers emit a bare empty line for empty context.
			line = Line{Kind: Context, Text: ""}
			oldSeen++
			newSeen++
		default:
			return hunk, 0, fmt.Errorf("line %d: unexpected %q inside hunk", i+1, raw)
		}
		hunk.Lines = append(hunk.Lines, line)
		i++
	}
	if oldSeen != hunk.OldLines || newSeen != hunk.NewLines {
		return hunk, 0, fmt.Errorf("line %d: hunk is short: stated -%d,+%d, found -%d,+%d",
			start+1, hunk.OldLines, hunk.NewLines, oldSeen, newSeen)
	}
	// A trailing annotation can follow the last counted line.
	if i < len(lines) && strings.HasPrefix(lines[i], `\`) {
		hunk.Lines[len(hunk.Lines)-1].NoNewline = true
		i++
	}
	return hunk, i, nil
}

// parseHunkHeader parses "@@ -l[,s] +l[,s] @@ section".
func parseHunkHeader(header string) (Hunk, error) {
	var hunk Hunk
	rest, ok := strings.CutPrefix(header, "@@ -")
	if !ok {
		return hunk, fmt.Errorf("malformed hunk header %q", header)
	}
	body, section, found := strings.Cut(rest, " @@")
	if !found {
		return hunk, fmt.Errorf("malformed hunk header %q", header)
	}
	hunk.Section = strings.TrimSpace(section)

	oldPart, newPart, found := strings.Cut(body, " +")
	if !found {
		return hunk, fmt.Errorf("malformed hunk header %q", header)
	}
	var err error
	if hunk.OldStart, hunk.OldLines, err = parseRange(oldPart); err != nil {
		return hunk, fmt.Errorf("hunk header %q: %w", header, err)
	}
	if hunk.NewStart, hunk.NewLines, err = parseRange(newPart); err != nil {
		return hunk, fmt.Errorf("hunk header %q: %w", header, err)
	}
	return hunk, nil
}

// parseRange parses "start[,count]"; an omitted count means 1.
func parseRange(s string) (start, count int, err error) {
	startText, countText, hasCount := strings.Cut(s, ",")
	start, err = strconv.Atoi(startText)
	if err != nil {
		return 0, 0, fmt.Errorf("bad line number %q", startText)
	}
	count = 1
	if hasCount {
		count, err = strconv.Atoi(countText)
		if err != nil {
			return 0, 0, fmt.Errorf("bad line count %q", countText)
		}
	}
	return start, count, nil
}

// splitLines splits on \n and strips one trailing \r per line, so LF
// and CRLF patches parse identically.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
