// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package mdterm

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

// stripped renders markdown and returns ANSI-stripped visible text.
func stripped(input string, width int) string {
	return ansi.Strip(Render(input, DefaultTheme, width))
}

func TestRenderEmpty(t *testing.T) {
	if result := Render("", DefaultTheme, 80); result != "" {
		t.Errorf("expected empty output for empty input, got %q", result)
	}
}

func TestRenderParagraphReflow(t *testing.T) {
	// Source hard-wrapped at ~40 columns; at width 120 the joined
	// text fits on one line, so soft breaks must become spaces.
	input := "This checklist entry was\nwritten at a narrow width with\nhard line breaks embedded in it."
	result := stripped(input, 120)

	if strings.Contains(result, "\n") {
		t.Errorf("expected single reflowed line at width=120, got:\n%s", result)
	}
	if !strings.Contains(result, "was written at") {
		t.Errorf("expected soft break converted to space, got:\n%s", result)
	}
}

func TestRenderParagraphWrapsToWidth(t *testing.T) {
	input := "This is a paragraph that should be wrapped at the target width."
	result := stripped(input, 30)

	for _, line := range strings.Split(result, "\n") {
		if len(line) > 30 {
			t.Errorf("line exceeds width 30: %q (len=%d)", line, len(line))
		}
	}
}

func TestRenderHardLineBreak(t *testing.T) {
	// Two trailing spaces force a hard break in CommonMark.
	input := "Line one  \nLine two"
	result := stripped(input, 80)

	if !strings.Contains(result, "Line one\nLine two") {
		t.Errorf("expected hard line break preserved, got:\n%s", result)
	}
}

func TestRenderHeadings(t *testing.T) {
	input := "# Release 25.2\n\n## Preparation\n\n### Details"
	result := stripped(input, 80)

	for _, want := range []string{"Release 25.2", "Preparation", "Details"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing heading text %q", want)
		}
	}
	if raw := Render(input, DefaultTheme, 80); raw == result {
		t.Error("expected ANSI styling in heading output")
	}
}

func TestRenderEmphasis(t *testing.T) {
	input := "This is *italic* and **bold** text."
	result := stripped(input, 80)

	if !strings.Contains(result, "italic") || !strings.Contains(result, "bold") {
		t.Errorf("missing emphasized text, got:\n%s", result)
	}
	if raw := Render(input, DefaultTheme, 80); raw == result {
		t.Error("expected ANSI styling in emphasis output")
	}
}

func TestRenderCodeSpan(t *testing.T) {
	result := stripped("Run `bale vendor sync` first.", 80)
	if !strings.Contains(result, "bale vendor sync") {
		t.Errorf("missing code span text, got:\n%s", result)
	}
}

func TestRenderFencedCodeBlock(t *testing.T) {
	input := "Before.\n\n```python\ndef main():\n    pass\n```\n\nAfter."
	result := stripped(input, 80)

	for _, want := range []string{"Before.", "def main():", "After."} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q in output:\n%s", want, result)
		}
	}
}

func TestRenderFencedCodeBlockHighlighted(t *testing.T) {
	raw := Render("```python\nimport os\n```", DefaultTheme, 80)
	if !strings.Contains(raw, "\x1b[") {
		t.Error("expected ANSI escapes from syntax highlighting")
	}
}

func TestRenderCodeBlockNotReflowed(t *testing.T) {
	input := "```\nshort\nlines\nhere\n```"
	result := stripped(input, 80)

	if !strings.Contains(result, "short\nlines\nhere") {
		t.Errorf("expected code lines preserved, got:\n%s", result)
	}
}

func TestRenderBlockquote(t *testing.T) {
	input := "> The release branch must be\n> clean before tagging."
	result := stripped(input, 80)

	if !strings.Contains(result, "│") {
		t.Errorf("expected quote prefix, got:\n%s", result)
	}
	// Soft break inside the quote reflows.
	if !strings.Contains(result, "must be clean") {
		t.Errorf("expected reflow inside blockquote, got:\n%s", result)
	}
}

func TestRenderUnorderedList(t *testing.T) {
	result := stripped("- sync vendors\n- run tests\n- tag", 80)
	for _, want := range []string{"- sync vendors", "- run tests", "- tag"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing list item %q, got:\n%s", want, result)
		}
	}
}

func TestRenderOrderedList(t *testing.T) {
	result := stripped("1. First\n2. Second\n3. Third", 80)
	for _, want := range []string{"1. First", "2. Second", "3. Third"} {
		if !strings.Contains(result, want) {
			t.Errorf("missing ordered item %q, got:\n%s", want, result)
		}
	}
}

func TestRenderListItemContinuationIndent(t *testing.T) {
	// A long item wraps; continuation lines indent under the text,
	// not under the bullet.
	input := "- This list item is long enough that it will definitely wrap at thirty columns"
	result := stripped(input, 30)

	lines := strings.Split(result, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected wrapped list item, got:\n%s", result)
	}
	if !strings.HasPrefix(lines[0], "- ") {
		t.Errorf("first line should carry the bullet, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  ") {
		t.Errorf("continuation should be indented, got %q", lines[1])
	}
}

func TestRenderTaskCheckboxes(t *testing.T) {
	input := "- [x] Ensure CI is green\n- [ ] Tag the release"
	result := stripped(input, 80)

	if !strings.Contains(result, "[x] Ensure CI is green") {
		t.Errorf("missing checked task, got:\n%s", result)
	}
	if !strings.Contains(result, "[ ] Tag the release") {
		t.Errorf("missing unchecked task, got:\n%s", result)
	}
}

func TestRenderStrikethrough(t *testing.T) {
	result := stripped("~~dropped step~~", 80)
	if !strings.Contains(result, "dropped step") {
		t.Errorf("missing struck text, got:\n%s", result)
	}
}

func TestRenderLink(t *testing.T) {
	result := stripped("See the [release notes](https://example.org/notes).", 120)
	if !strings.Contains(result, "release notes") {
		t.Error("missing link text")
	}
	if !strings.Contains(result, "(https://example.org/notes)") {
		t.Errorf("expected URL in parentheses, got:\n%s", result)
	}
}

func TestRenderAutoLink(t *testing.T) {
	result := stripped("Docs at https://example.org/docs today.", 120)
	if !strings.Contains(result, "https://example.org/docs") {
		t.Errorf("missing autolink, got:\n%s", result)
	}
}

func TestRenderThematicBreak(t *testing.T) {
	result := stripped("above\n\n---\n\nbelow", 40)
	if !strings.Contains(result, "────") {
		t.Errorf("expected horizontal rule, got:\n%s", result)
	}
}

func TestRenderTable(t *testing.T) {
	input := "| Package | Version |\n| --- | --- |\n| requests | 2.32.5 |\n| idna | 3.10 |"
	result := stripped(input, 80)

	if !strings.Contains(result, "Package") || !strings.Contains(result, "Version") {
		t.Errorf("missing table header, got:\n%s", result)
	}
	if !strings.Contains(result, "requests") || !strings.Contains(result, "2.32.5") {
		t.Errorf("missing table body, got:\n%s", result)
	}
	// Columns are padded: header cells line up over body cells.
	lines := strings.Split(result, "\n")
	var headerLine, firstRow string
	for i, line := range lines {
		if strings.Contains(line, "Package") {
			headerLine = line
			for _, later := range lines[i+1:] {
				if strings.Contains(later, "requests") {
					firstRow = later
					break
				}
			}
			break
		}
	}
	if headerLine == "" || firstRow == "" {
		t.Fatalf("could not locate table lines in:\n%s", result)
	}
	if strings.Index(headerLine, "Version") != strings.Index(firstRow, "2.32.5") {
		t.Errorf("columns not aligned:\n%q\n%q", headerLine, firstRow)
	}
}

func TestRenderHTMLStripped(t *testing.T) {
	result := stripped("Before <b>kept</b> after.", 80)
	if strings.Contains(result, "<b>") {
		t.Errorf("expected HTML tags stripped, got:\n%s", result)
	}
	if !strings.Contains(result, "kept") {
		t.Errorf("expected tag content kept, got:\n%s", result)
	}
}

func TestRenderMultipleParagraphs(t *testing.T) {
	result := stripped("First paragraph.\n\nSecond paragraph.", 80)
	if !strings.Contains(result, "First paragraph.\n\nSecond paragraph.") {
		t.Errorf("expected blank line between paragraphs, got:\n%s", result)
	}
}

func TestHighlightDiff(t *testing.T) {
	diff := "--- a/src/api.py\n+++ b/src/api.py\n@@ -1,3 +1,3 @@\n-old line\n+new line\n context\n"
	highlighted := Highlight(diff, "diff")

	if !strings.Contains(highlighted, "\x1b[") {
		t.Error("expected ANSI escapes from diff highlighting")
	}
	if !strings.Contains(ansi.Strip(highlighted), "+new line") {
		t.Errorf("highlighting must not alter content, got:\n%s", ansi.Strip(highlighted))
	}
}

func TestHighlightUnknownLanguageFallsBack(t *testing.T) {
	source := "plain text content"
	highlighted := Highlight(source, "")
	if !strings.Contains(ansi.Strip(highlighted), source) {
		t.Errorf("fallback must keep content, got %q", highlighted)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>hello</p>", "hello"},
		{"no tags", "no tags"},
		{"<br/>", ""},
		{"a <b>b</b> c", "a b c"},
	}
	for _, test := range tests {
		if got := stripTags(test.input); got != test.want {
			t.Errorf("stripTags(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}
