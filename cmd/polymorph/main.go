// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Polymorph resolves game client assets from a TACT content CDN.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an error with an
		// ExitCode method; no extra "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
