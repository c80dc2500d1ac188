// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package mdterm

import "github.com/charmbracelet/lipgloss"

// Theme is the color palette for rendered markdown. All colors are
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// NormalText is the default foreground for body text.
	NormalText lipgloss.Color

	// FaintText is used for secondary content: inline code, URLs,
	// unhighlighted code blocks.
	FaintText lipgloss.Color

	// HeaderForeground is the foreground for level 1-2 headings.
	// Deeper headings use NormalText bold.
	HeaderForeground lipgloss.Color

	// BorderColor is used for rules and table separators.
	BorderColor lipgloss.Color

	// DoneText marks checked task-list boxes.
	DoneText lipgloss.Color
}

// DefaultTheme is the built-in palette, designed for 256-color
// terminals with a dark background.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("245"),
	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	DoneText:         lipgloss.Color("114"),
}
