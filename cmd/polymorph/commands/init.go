// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/cdn"
)

func (a *app) initCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "init",
		Summary: "Resolve the current build and download every archive",
		Description: `Resolve the current build from the patch server, fetch its root file
and archive indices, then download every archive into the cache so
later lookups need no network.`,
		Usage: "polymorph init [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return a.runInit(ctx, &options)
		},
	}
}

func (a *app) runInit(ctx context.Context, options *globalOptions) error {
	cfg, err := options.load()
	if err != nil {
		return err
	}
	logger := a.newLogger(options.verbose).With("command", "init")

	fetcher, err := cdn.New(ctx, fetcherConfig(cfg, logger))
	if err != nil {
		return err
	}
	record := fetcher.Record()
	fmt.Fprintf(a.stdout, "build %s (%s), %d archives\n", record.BuildName, record.VersionsName, len(record.Archives))

	err = fetcher.FetchAllArchives(ctx, func(progress cdn.ArchiveProgress) {
		fmt.Fprintf(a.stdout, "[%d/%d] fetched archive %s\n", progress.Done, progress.Total, progress.Archive)
	})
	if err != nil {
		return fmt.Errorf("fetching archives: %w", err)
	}

	stats := fetcher.Stats()
	logger.Info("archives cached",
		"archives", len(record.Archives),
		"downloads", stats.Downloads,
		"bytes", stats.BytesDownloaded,
	)
	return nil
}
