// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/baleproject/bale/lib/release"
)

// Theme is the color palette for the release dashboard. All colors are
// ANSI 256 palette entries so they degrade predictably on terminals
// without truecolor support.
type Theme struct {
	// NormalText is the default foreground.
	NormalText lipgloss.Color
	// FaintText is for secondary annotations: durations, skip reasons,
	// the branch/tag line.
	FaintText lipgloss.Color
	// HeaderForeground is the bold title line.
	HeaderForeground lipgloss.Color
	// HelpText is the bottom key-hint bar.
	HelpText lipgloss.Color

	// Per-status glyph colors.
	StatusPending lipgloss.Color
	StatusRunning lipgloss.Color
	StatusDone    lipgloss.Color
	StatusFailed  lipgloss.Color
	StatusSkipped lipgloss.Color
}

// StatusColor returns the glyph color for a step status.
func (theme Theme) StatusColor(status release.Status) lipgloss.Color {
	switch status {
	case release.StatusRunning:
		return theme.StatusRunning
	case release.StatusDone:
		return theme.StatusDone
	case release.StatusFailed:
		return theme.StatusFailed
	case release.StatusSkipped:
		return theme.StatusSkipped
	default:
		return theme.StatusPending
	}
}

// DefaultTheme is a dark-terminal palette.
var DefaultTheme = Theme{
	NormalText:       lipgloss.Color("252"),
	FaintText:        lipgloss.Color("245"),
	HeaderForeground: lipgloss.Color("255"),
	HelpText:         lipgloss.Color("241"),

	StatusPending: lipgloss.Color("245"), // gray
	StatusRunning: lipgloss.Color("220"), // yellow/amber
	StatusDone:    lipgloss.Color("114"), // green
	StatusFailed:  lipgloss.Color("196"), // red
	StatusSkipped: lipgloss.Color("245"), // gray
}
