// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package checklist parses, edits, and generates markdown release
// checklists. A checklist is a GFM document whose task-list items
// ("- [ ] ...") track release steps: automated steps are checked off
// by the release runner, manual steps are ticked by the operator and
// folded back into release state.
//
// Parse builds a Document model over the original bytes. SetChecked
// flips a single checkbox cell in those bytes and leaves every other
// byte untouched, so hand-written prose survives round trips.
package checklist

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// parserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share — actual parsing creates per-call state via Parse(reader).
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return parserInstance
}

// checkboxPrefix matches the task-list marker at the start of an
// item's raw first line.
var checkboxPrefix = regexp.MustCompile(`^\[[ \txX]\]\s*`)

// refPattern matches a trailing backticked reference in item text,
// e.g. "Build distributions (`build`)".
var refPattern = regexp.MustCompile("\\(`([^`]+)`\\)\\s*$")

// Document is a parsed checklist. It keeps the source bytes it was
// parsed from so checkbox edits can be written back without
// disturbing anything else in the file.
type Document struct {
	// Title is the text of the first level-1 heading, or empty.
	Title string

	// Sections groups the task items by heading. Items that appear
	// before any heading land in a section with an empty Heading.
	Sections []Section

	source []byte
}

// Section is a run of task items under one heading.
type Section struct {
	Heading string
	Items   []Item
}

// Item is a single task-list entry.
type Item struct {
	// Text is the raw item text with the checkbox marker stripped.
	// Continuation lines are joined with single spaces.
	Text string

	// Checked reports the state of the checkbox cell.
	Checked bool

	// ID is the item's stable identifier: a slug of Text, with -2/-3
	// suffixes distinguishing duplicates in document order.
	ID string

	// Line is the 1-based source line the checkbox appears on.
	Line int

	// cellOffset is the byte offset of the character between the
	// checkbox brackets.
	cellOffset int
}

// Ref returns the step reference embedded in the item text as a
// trailing backticked token: "Build distributions (`build`)" yields
// "build". Returns the empty string when the item carries none.
// Generated checklists embed the plan step ID this way so checkbox
// edits can be mapped back to steps.
func (item Item) Ref() string {
	match := refPattern.FindStringSubmatch(item.Text)
	if match == nil {
		return ""
	}
	return match[1]
}

// Parse builds a Document from markdown source. Any input is a valid
// checklist: documents without task items parse to zero sections.
func Parse(source []byte) *Document {
	document := &Document{source: append([]byte(nil), source...)}
	reader := text.NewReader(document.source)
	root := getParser().Parser().Parse(reader)

	slugs := make(map[string]int)
	sawHeading := false

	ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node.Kind() {
		case ast.KindHeading:
			heading := node.(*ast.Heading)
			title := blockText(heading, document.source)
			if heading.Level == 1 && !sawHeading && len(document.Sections) == 0 {
				document.Title = title
			} else {
				document.Sections = append(document.Sections, Section{Heading: title})
			}
			sawHeading = true
			return ast.WalkSkipChildren, nil

		case extast.KindTaskCheckBox:
			checkbox := node.(*extast.TaskCheckBox)
			item, ok := newItem(checkbox, document.source, slugs)
			if !ok {
				return ast.WalkContinue, nil
			}
			if len(document.Sections) == 0 {
				document.Sections = append(document.Sections, Section{})
			}
			section := &document.Sections[len(document.Sections)-1]
			section.Items = append(section.Items, item)
		}
		return ast.WalkContinue, nil
	})

	return document
}

// newItem builds an Item from a checkbox node. The checkbox's parent
// block holds the raw line segments: the first one starts at the "["
// of the marker, which pins the cell offset for SetChecked.
func newItem(checkbox *extast.TaskCheckBox, source []byte, slugs map[string]int) (Item, bool) {
	parent := checkbox.Parent()
	if parent == nil || parent.Lines().Len() == 0 {
		return Item{}, false
	}
	first := parent.Lines().At(0)
	if first.Start >= len(source) || source[first.Start] != '[' {
		return Item{}, false
	}

	raw := string(first.Value(source))
	parts := []string{strings.TrimSpace(checkboxPrefix.ReplaceAllString(raw, ""))}
	for i := 1; i < parent.Lines().Len(); i++ {
		seg := parent.Lines().At(i)
		parts = append(parts, strings.TrimSpace(string(seg.Value(source))))
	}
	itemText := strings.TrimSpace(strings.Join(parts, " "))

	return Item{
		Text:       itemText,
		Checked:    checkbox.IsChecked,
		ID:         uniqueSlug(itemText, slugs),
		Line:       bytes.Count(source[:first.Start], []byte("\n")) + 1,
		cellOffset: first.Start + 1,
	}, true
}

// blockText joins a block node's raw source lines with single spaces.
func blockText(node ast.Node, source []byte) string {
	lines := node.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimSpace(string(seg.Value(source))))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Source returns the document's backing bytes, reflecting any
// SetChecked edits. Callers write this back to disk.
func (d *Document) Source() []byte {
	return d.source
}

// Item returns the item with the given ID.
func (d *Document) Item(id string) (Item, bool) {
	for _, section := range d.Sections {
		for _, item := range section.Items {
			if item.ID == id {
				return item, true
			}
		}
	}
	return Item{}, false
}

// Progress reports how many items are checked and how many exist in
// total.
func (d *Document) Progress() (done, total int) {
	for _, section := range d.Sections {
		for _, item := range section.Items {
			total++
			if item.Checked {
				done++
			}
		}
	}
	return done, total
}

// SetChecked flips the checkbox cell of the item with the given ID.
// Only the single byte between the brackets changes; the rest of the
// source is preserved exactly. Setting an item to its current state
// is a no-op.
func (d *Document) SetChecked(id string, checked bool) error {
	for sectionIndex := range d.Sections {
		for itemIndex := range d.Sections[sectionIndex].Items {
			item := &d.Sections[sectionIndex].Items[itemIndex]
			if item.ID != id {
				continue
			}
			if item.Checked == checked {
				return nil
			}
			cell := byte(' ')
			if checked {
				cell = 'x'
			}
			d.source[item.cellOffset] = cell
			item.Checked = checked
			return nil
		}
	}
	return fmt.Errorf("checklist: no item %q", id)
}

// Slug converts text to a stable lowercase identifier: runs of
// non-alphanumeric characters become single hyphens, with no leading
// or trailing hyphen.
func Slug(text string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// uniqueSlug slugs text and disambiguates repeats with -2, -3, ...
// suffixes in encounter order.
func uniqueSlug(text string, seen map[string]int) string {
	slug := Slug(text)
	if slug == "" {
		slug = "item"
	}
	seen[slug]++
	if count := seen[slug]; count > 1 {
		return fmt.Sprintf("%s-%d", slug, count)
	}
	return slug
}
