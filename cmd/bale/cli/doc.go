// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the bale CLI.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in
// cmd/bale/commands/commands.go and dispatched via [Command.Execute],
// which handles flag parsing, subcommand routing, and structured help
// output with examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// Flag declaration is tag-driven: commands describe their flags as
// struct fields with flag/desc/default tags and call [FlagsFromParams],
// which binds them via reflection. Embedding [JSONOutput] in a params
// struct adds the standard --json flag and the EmitJSON helper.
//
// Two small helpers round out the framework: [ExitError] carries a
// non-zero exit code through the error return without printing anything
// (main checks for the ExitCode method), and [SignalContext] builds the
// SIGINT/SIGTERM-cancelled context that long-running commands pass down
// to network and subprocess calls.
package cli
