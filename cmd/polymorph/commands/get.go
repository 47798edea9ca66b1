// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/listfile"
)

// getOptions are the flags of get-id and get-name.
type getOptions struct {
	globalOptions
	outPath string
	offline bool
}

func (o *getOptions) register(flagSet *pflag.FlagSet) {
	o.globalOptions.register(flagSet)
	flagSet.StringVarP(&o.outPath, "out-path", "o", "", `output file ("-" for stdout)`)
	flagSet.BoolVarP(&o.offline, "no-fetch", "n", false, "use only the cached build and content")
}

func (a *app) getIDCommand() *cli.Command {
	var options getOptions
	return &cli.Command{
		Name:    "get-id",
		Summary: "Write one file by numeric file id",
		Usage:   "polymorph get-id <file-id> --out-path <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get-id", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Command: "polymorph get-id 136235 --out-path icon.blp"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "file-id"); err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("file id %q is not a 32-bit unsigned integer", args[0])
			}
			return a.runGet(ctx, &options, func(string) (uint32, error) {
				return uint32(id), nil
			})
		},
	}
}

func (a *app) getNameCommand() *cli.Command {
	var options getOptions
	return &cli.Command{
		Name:    "get-name",
		Summary: "Write one file by its listfile path",
		Description: `Write one file by its path. The path is resolved to a file id through
the listfile database loaded with "polymorph listfile import".`,
		Usage: "polymorph get-name <name> --out-path <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get-name", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Command: `polymorph get-name "Interface/Icons/INV_Misc_QuestionMark.blp" --out-path icon.blp`},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "name"); err != nil {
				return err
			}
			name := args[0]
			return a.runGet(ctx, &options, func(cacheDir string) (uint32, error) {
				return lookupName(cacheDir, name)
			})
		},
	}
}

// lookupName resolves name through the listfile database in cacheDir.
func lookupName(cacheDir, name string) (uint32, error) {
	names, err := listfile.Open(filepath.Join(cacheDir, listfile.FileName))
	if err != nil {
		return 0, err
	}
	defer names.Close()
	return names.Lookup(name)
}

// runGet resolves a file id, fetches and decodes it, and writes it to
// the output path.
func (a *app) runGet(ctx context.Context, options *getOptions, resolve func(cacheDir string) (uint32, error)) error {
	if options.outPath == "" {
		return fmt.Errorf("--out-path is required")
	}
	cfg, err := options.load()
	if err != nil {
		return err
	}
	logger := a.newLogger(options.verbose).With("command", "get")

	id, err := resolve(cfg.Paths.Cache)
	if err != nil {
		return err
	}

	fetcherCfg := fetcherConfig(cfg, logger)
	fetcherCfg.Offline = options.offline
	fetcher, err := cdn.New(ctx, fetcherCfg)
	if err != nil {
		return err
	}
	data, err := fetcher.FetchFileID(ctx, id)
	if err != nil {
		return err
	}

	if options.outPath == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(options.outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", options.outPath, err)
	}
	logger.Info("file written", "file_id", id, "path", options.outPath, "bytes", len(data))
	return nil
}
