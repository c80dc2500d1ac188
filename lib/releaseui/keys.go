// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings for the release dashboard. The
// dashboard is read-only, so quitting is the only action.
type KeyMap struct {
	Quit key.Binding
}

// DefaultKeyMap is the built-in key binding set.
var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}
