// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/blobcache"
	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/listfile"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

func (a *app) infoCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "info",
		Summary: "Show the cached build without network access",
		Usage:   "polymorph info [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("info", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return a.runInfo(&options)
		},
	}
}

func (a *app) runInfo(options *globalOptions) error {
	cfg, err := options.load()
	if err != nil {
		return err
	}

	cache, err := blobcache.Open(cfg.Paths.Cache)
	if err != nil {
		return err
	}
	record, err := cdn.LoadRecord(cache)
	if errors.Is(err, tact.ErrNotFound) {
		return fmt.Errorf("no build resolved in %s (run 'polymorph init'): %w", cfg.Paths.Cache, err)
	}
	if err != nil {
		return err
	}

	cachedArchives := 0
	for _, archive := range record.Archives {
		if cache.Has(archive.String()) {
			cachedArchives++
		}
	}

	tw := tabwriter.NewWriter(a.stdout, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "product:\t%s\n", record.Product)
	fmt.Fprintf(tw, "region:\t%s\n", record.Region)
	fmt.Fprintf(tw, "build:\t%s\n", record.BuildName)
	fmt.Fprintf(tw, "version:\t%s (%d)\n", record.VersionsName, record.BuildID)
	fmt.Fprintf(tw, "build config:\t%s\n", record.BuildConfig)
	fmt.Fprintf(tw, "cdn config:\t%s\n", record.CDNConfig)
	fmt.Fprintf(tw, "root:\t%s\n", record.Root)
	fmt.Fprintf(tw, "hosts:\t%s\n", strings.Join(record.Hosts, " "))
	fmt.Fprintf(tw, "archives:\t%d (%d cached)\n", len(record.Archives), cachedArchives)
	fmt.Fprintf(tw, "resolved:\t%s\n", record.ResolvedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "cache:\t%s\n", cache.Dir())

	// Only report the listfile when one was imported; opening it
	// would create an empty database.
	databasePath := filepath.Join(cfg.Paths.Cache, listfile.FileName)
	if _, err := os.Stat(databasePath); err == nil {
		names, err := listfile.Open(databasePath)
		if err != nil {
			return err
		}
		count, err := names.Len()
		names.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "listfile:\t%d names\n", count)
	}
	return tw.Flush()
}
