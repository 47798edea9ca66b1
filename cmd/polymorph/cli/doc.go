// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the polymorph
// binary.
//
// The central type is [Command]: a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. The tree is assembled in cmd/polymorph/commands and
// dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and help output with examples.
//
// An unknown subcommand or flag gets a "did you mean" suggestion when
// a known name is within edit distance 3 (suggest.go).
package cli
