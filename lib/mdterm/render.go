// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package mdterm

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// breakpoints are the characters ansi.Wrap may break a line after, in
// addition to spaces.
const breakpoints = " ,.;-+|"

// The parser configuration never changes and a goldmark.Markdown is
// safe to share: parsing state is created per Parse call.
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// Render parses source as GFM markdown and renders it as styled
// terminal text wrapped to width. Single newlines inside paragraphs
// reflow; code blocks, lists, and quotes keep their structure. The
// result carries ANSI escapes and no trailing newline.
func Render(source string, theme Theme, width int) string {
	if source == "" {
		return ""
	}
	src := []byte(source)
	document := parser().Parser().Parse(text.NewReader(src))

	r := &renderer{
		src:   src,
		theme: theme,
		width: width,
		lip:   ansiRenderer(),
	}
	ast.Walk(document, r.walk)

	// Blank-line management pads before headings and tables, which
	// leaves leading newlines when the document opens with one.
	return strings.Trim(r.out.String(), "\n")
}

// Highlight syntax-highlights source with the named chroma lexer
// ("diff", "python", "yaml", ...) for a 256-color terminal. Unknown
// languages and highlighting failures degrade to faint plain text.
func Highlight(source, language string) string {
	if language != "" {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, source, language, "terminal256", "monokai"); err == nil {
			return highlighted.String()
		}
	}
	faint := ansiRenderer().NewStyle().Foreground(DefaultTheme.FaintText)
	return faint.Render(source)
}

// ansiRenderer returns a lipgloss renderer pinned to ANSI256. Output
// is always destined for a terminal, so auto-detection (which sees no
// TTY under tests and in pipelines) is bypassed. SetColorProfile is
// needed as well: the renderer re-detects from the environment unless
// the profile is set explicitly.
func ansiRenderer() *lipgloss.Renderer {
	lip := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	lip.SetColorProfile(termenv.ANSI256)
	return lip
}

// renderer walks a goldmark AST and accumulates styled terminal text.
// It uses a direct ast.Walk instead of goldmark's renderer interface
// because terminal output needs accumulate-then-wrap semantics:
// inline content collects in a buffer and is word-wrapped as a unit
// when its block closes.
type renderer struct {
	src   []byte
	theme Theme
	width int
	lip   *lipgloss.Renderer

	out strings.Builder

	// inline collects styled fragments inside the current paragraph,
	// heading, or list item; flushed with word-wrap when the block
	// closes.
	inline strings.Builder

	// Prefix stack for nested containers (quotes, list bodies).
	prefixes    []prefix
	linePrefix  string
	prefixWidth int

	// pendingBullet replaces linePrefix for the next emitted line
	// only: the first line of a list item carries the bullet,
	// continuation lines carry spaces.
	pendingBullet string

	// Style depth counters; counters rather than booleans so nested
	// emphasis unwinds correctly.
	bold   int
	italic int
	strike int

	lists []listState

	// trailingNL tracks newlines at the end of out for blank-line
	// management.
	trailingNL int
}

type prefix struct {
	text  string
	width int
}

type listState struct {
	ordered bool
	counter int
	tight   bool
}

func (r *renderer) style() lipgloss.Style {
	return r.lip.NewStyle()
}

// contentWidth is the wrap width after subtracting nesting prefixes,
// clamped so degenerate terminal sizes still produce usable output.
func (r *renderer) contentWidth() int {
	width := r.width - r.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (r *renderer) pushPrefix(text string, width int) {
	r.prefixes = append(r.prefixes, prefix{text: text, width: width})
	r.linePrefix += text
	r.prefixWidth += width
}

func (r *renderer) popPrefix() {
	if len(r.prefixes) == 0 {
		return
	}
	top := r.prefixes[len(r.prefixes)-1]
	r.prefixes = r.prefixes[:len(r.prefixes)-1]
	r.linePrefix = r.linePrefix[:len(r.linePrefix)-len(top.text)]
	r.prefixWidth -= top.width
}

func (r *renderer) inTightList() bool {
	if len(r.lists) == 0 {
		return false
	}
	return r.lists[len(r.lists)-1].tight
}

func (r *renderer) write(s string) {
	if s == "" {
		return
	}
	r.out.WriteString(s)

	trailing := 0
	allNewlines := true
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			trailing++
		} else {
			allNewlines = false
			break
		}
	}
	if allNewlines {
		r.trailingNL += trailing
	} else {
		r.trailingNL = trailing
	}
}

func (r *renderer) ensureNewline() {
	if r.trailingNL < 1 {
		r.write("\n")
	}
}

func (r *renderer) ensureBlankLine() {
	for r.trailingNL < 2 {
		r.write("\n")
	}
}

// takePrefix returns the prefix for the next emitted line: the
// pending bullet once, then the regular line prefix.
func (r *renderer) takePrefix() string {
	if r.pendingBullet != "" {
		bullet := r.pendingBullet
		r.pendingBullet = ""
		return bullet
	}
	return r.linePrefix
}

// prefixed prepends line prefixes to every line of content.
func (r *renderer) prefixed(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(r.takePrefix())
		} else {
			b.WriteString(r.linePrefix)
		}
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// flushInline word-wraps the accumulated inline content and applies
// line prefixes. Resets the inline buffer.
func (r *renderer) flushInline() string {
	content := r.inline.String()
	r.inline.Reset()
	if content == "" {
		return ""
	}
	return r.prefixed(ansi.Wrap(content, r.contentWidth(), breakpoints))
}

// styled applies the current inline style depth to content.
func (r *renderer) styled(content string) string {
	style := r.style().Foreground(r.theme.NormalText)
	if r.bold > 0 {
		style = style.Bold(true)
	}
	if r.italic > 0 {
		style = style.Italic(true)
	}
	if r.strike > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// inlineContent renders a node's children into a string, saving and
// restoring the inline buffer and style counters around the walk.
func (r *renderer) inlineContent(node ast.Node) string {
	savedInline := r.inline.String()
	savedBold, savedItalic, savedStrike := r.bold, r.italic, r.strike

	r.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, r.walk)
	}
	content := r.inline.String()

	r.inline.Reset()
	r.inline.WriteString(savedInline)
	r.bold, r.italic, r.strike = savedBold, savedItalic, savedStrike

	return content
}

func (r *renderer) highlightCode(code, language string) string {
	if language == "" {
		return r.style().Foreground(r.theme.FaintText).Render(code)
	}
	var highlighted strings.Builder
	if err := quick.Highlight(&highlighted, code, language, "terminal256", "monokai"); err != nil {
		return r.style().Foreground(r.theme.FaintText).Render(code)
	}
	return highlighted.String()
}

func (r *renderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			r.inline.Reset()
		} else if flushed := r.flushInline(); flushed != "" {
			r.write(flushed)
			r.ensureNewline()
			if !r.inTightList() {
				r.ensureBlankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			r.inline.Reset()
		} else {
			r.leaveHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := node.(*ast.FencedCodeBlock)
			r.renderCode(blockLines(block, r.src), string(block.Language(r.src)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			r.renderCode(blockLines(node.(*ast.CodeBlock), r.src), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			r.pushPrefix("│ ", 2)
		} else {
			r.popPrefix()
			r.ensureBlankLine()
		}

	case ast.KindList:
		if entering {
			r.enterList(node.(*ast.List))
		} else {
			r.leaveList()
		}

	case ast.KindListItem:
		if entering {
			r.enterListItem()
		} else {
			r.leaveListItem()
		}

	case ast.KindThematicBreak:
		if entering {
			rule := r.style().Foreground(r.theme.BorderColor).
				Render(strings.Repeat("─", r.contentWidth()))
			r.ensureBlankLine()
			r.write(r.prefixed(rule))
			r.ensureNewline()
			r.ensureBlankLine()
		}

	case ast.KindHTMLBlock:
		if entering {
			stripped := strings.TrimSpace(stripTags(blockLines(node.(*ast.HTMLBlock), r.src)))
			if stripped != "" {
				r.write(r.prefixed(r.style().Foreground(r.theme.FaintText).Render(stripped)))
				r.ensureNewline()
				r.ensureBlankLine()
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindText:
		if entering {
			r.handleText(node.(*ast.Text))
		}

	case ast.KindString:
		if entering {
			r.inline.WriteString(r.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		r.handleEmphasis(node.(*ast.Emphasis), entering)

	case ast.KindCodeSpan:
		if entering {
			r.renderCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			link := node.(*ast.Link)
			r.inline.WriteString(r.inlineContent(link))
			if url := string(link.Destination); url != "" {
				r.inline.WriteString(" " + r.style().Foreground(r.theme.FaintText).Render("("+url+")"))
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(r.src))
			r.inline.WriteString(r.style().Foreground(r.theme.FaintText).Render(url))
		}

	case ast.KindImage:
		if entering {
			image := node.(*ast.Image)
			faint := r.style().Foreground(r.theme.FaintText)
			r.inline.WriteString(faint.Render("[" + r.inlineContent(image) + "]"))
			if url := string(image.Destination); url != "" {
				r.inline.WriteString(" " + faint.Render("("+url+")"))
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			raw := node.(*ast.RawHTML)
			var html strings.Builder
			for i := 0; i < raw.Segments.Len(); i++ {
				seg := raw.Segments.At(i)
				html.Write(seg.Value(r.src))
			}
			if stripped := stripTags(html.String()); stripped != "" {
				r.inline.WriteString(r.style().Foreground(r.theme.FaintText).Render(stripped))
			}
		}

	case extast.KindStrikethrough:
		if entering {
			r.strike++
		} else {
			r.strike--
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				done := r.style().Foreground(r.theme.DoneText)
				r.inline.WriteString(done.Render("[x]") + " ")
			} else {
				r.inline.WriteString(r.styled("[ ] "))
			}
		}

	case extast.KindTable:
		if entering {
			r.renderTable(node)
			return ast.WalkSkipChildren, nil
		}
	}

	return ast.WalkContinue, nil
}

func (r *renderer) leaveHeading(heading *ast.Heading) {
	// The heading style replaces whatever inline styling accumulated.
	content := ansi.Strip(r.inline.String())
	r.inline.Reset()
	if content == "" {
		return
	}

	style := r.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(r.theme.HeaderForeground)
	} else {
		style = style.Foreground(r.theme.NormalText)
	}

	wrapped := ansi.Wrap(style.Render(content), r.contentWidth(), breakpoints)
	r.ensureBlankLine()
	r.write(r.prefixed(wrapped))
	r.ensureNewline()
	r.ensureBlankLine()
}

func (r *renderer) renderCode(code, language string) {
	highlighted := r.highlightCode(code, language)
	r.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(highlighted, "\n"), "\n") {
		r.write(r.takePrefix() + line)
		r.ensureNewline()
	}
	r.ensureBlankLine()
}

func (r *renderer) enterList(list *ast.List) {
	start := 0
	if list.IsOrdered() {
		start = list.Start
	}
	r.lists = append(r.lists, listState{
		ordered: list.IsOrdered(),
		counter: start,
		tight:   list.IsTight,
	})
}

func (r *renderer) leaveList() {
	if len(r.lists) > 0 {
		r.lists = r.lists[:len(r.lists)-1]
	}
	if !r.inTightList() {
		r.ensureBlankLine()
	}
}

func (r *renderer) enterListItem() {
	if len(r.lists) == 0 {
		return
	}
	top := &r.lists[len(r.lists)-1]

	var bullet string
	if top.ordered {
		bullet = fmt.Sprintf("%d. ", top.counter)
		top.counter++
	} else {
		bullet = "- "
	}

	// Bullets are ASCII, so byte length is visual width.
	width := len(bullet)

	// The bullet replaces the whole prefix for the item's first line;
	// continuation lines indent under it.
	r.pendingBullet = r.linePrefix + bullet
	r.pushPrefix(strings.Repeat(" ", width), width)
}

func (r *renderer) leaveListItem() {
	r.popPrefix()
	if r.inTightList() {
		r.ensureNewline()
	} else {
		r.ensureBlankLine()
	}
}

func (r *renderer) handleText(node *ast.Text) {
	r.inline.WriteString(r.styled(string(node.Segment.Value(r.src))))

	// Soft breaks become spaces: hard-wrapped source reflows to the
	// terminal width instead of keeping its authored line lengths.
	if node.SoftLineBreak() {
		r.inline.WriteString(" ")
	}
	if node.HardLineBreak() {
		r.inline.WriteString("\n")
	}
}

func (r *renderer) handleEmphasis(node *ast.Emphasis, entering bool) {
	delta := 1
	if !entering {
		delta = -1
	}
	if node.Level >= 2 {
		r.bold += delta
	} else {
		r.italic += delta
	}
}

func (r *renderer) renderCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child := child.(type) {
		case *ast.Text:
			code.Write(child.Segment.Value(r.src))
		case *ast.String:
			code.Write(child.Value)
		}
	}
	r.inline.WriteString(r.style().Foreground(r.theme.FaintText).Render(code.String()))
}

// renderTable renders a GFM table as padded columns separated by two
// spaces, with a rule under the header. Cells wider than the
// available width are truncated; alignment markers are ignored.
func (r *renderer) renderTable(node ast.Node) {
	var header []string
	var rows [][]string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			header = r.tableRow(child)
		case extast.KindTableRow:
			rows = append(rows, r.tableRow(child))
		}
	}

	columns := len(header)
	for _, row := range rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	if columns == 0 {
		return
	}

	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	r.ensureBlankLine()

	if len(header) > 0 {
		bold := r.style().Bold(true).Foreground(r.theme.NormalText)
		r.write(r.takePrefix() + r.tableLine(header, widths, bold))
		r.ensureNewline()

		rule := make([]string, columns)
		for i, width := range widths {
			rule[i] = strings.Repeat("─", width)
		}
		border := r.style().Foreground(r.theme.BorderColor)
		r.write(r.linePrefix + border.Render(strings.Join(rule, "  ")))
		r.ensureNewline()
	}

	for _, row := range rows {
		r.write(r.linePrefix + r.tableLine(row, widths, r.style()))
		r.ensureNewline()
	}

	r.ensureBlankLine()
}

func (r *renderer) tableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, r.inlineContent(cell))
		}
	}
	return cells
}

func (r *renderer) tableLine(cells []string, widths []int, style lipgloss.Style) string {
	available := r.contentWidth()
	parts := make([]string, len(widths))
	for i, width := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		if width > available {
			width = available
		}
		if lipgloss.Width(cell) > width {
			cell = ansi.Truncate(cell, width, "…")
		}
		if pad := width - lipgloss.Width(cell); pad > 0 {
			cell += strings.Repeat(" ", pad)
		}
		parts[i] = cell
	}
	return style.Render(strings.Join(parts, "  "))
}

// blockLines joins the source lines of a block node.
func blockLines(node ast.Node, src []byte) string {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// stripTags removes HTML tags, keeping only text content.
func stripTags(html string) string {
	var b strings.Builder
	inTag := false
	for _, c := range html {
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			b.WriteRune(c)
		}
	}
	return b.String()
}
