// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package releaseui implements the terminal dashboard for watching a
// release in progress. Built on bubbletea (Elm architecture), it polls
// the release state file and renders the plan's steps with live status
// glyphs: a spinner on the running step, durations on finished ones,
// and the first line of the error on failed ones.
//
// The dashboard is strictly read-only. It never writes the state file;
// all mutations go through the release runner, typically driven from a
// second terminal. When the release reaches a terminal state (every
// step satisfied, or aborted) the poll loop stops and a summary line
// replaces the help bar.
package releaseui
