// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/listfile"
)

func (a *app) listfileCommand() *cli.Command {
	return &cli.Command{
		Name:    "listfile",
		Summary: "Manage the file name database",
		Description: `Manage the file name database used by get-name and the /name route.
A listfile is a text file of "<file-id>;<path>" lines.`,
		Subcommands: []*cli.Command{
			a.listfileImportCommand(),
			a.listfileLookupCommand(),
			a.listfileNameCommand(),
		},
	}
}

func (a *app) listfileImportCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "import",
		Summary: "Load a listfile into the name database",
		Usage:   "polymorph listfile import <path> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Command: "polymorph listfile import community-listfile.csv"},
			{Description: "Read from stdin", Command: "curl -sL $LISTFILE_URL | polymorph listfile import -"},
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "path"); err != nil {
				return err
			}
			return a.runListfileImport(&options, args[0])
		},
	}
}

func (a *app) runListfileImport(options *globalOptions, path string) error {
	cfg, err := options.load()
	if err != nil {
		return err
	}

	var source io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening listfile: %w", err)
		}
		defer file.Close()
		source = file
	}

	names, err := listfile.Open(filepath.Join(cfg.Paths.Cache, listfile.FileName))
	if err != nil {
		return err
	}
	defer names.Close()

	result, err := names.Import(source)
	if err != nil {
		return err
	}
	total, err := names.Len()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %d names (%d skipped), %d in database\n", result.Entries, result.Skipped, total)
	return nil
}

func (a *app) listfileLookupCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "lookup",
		Summary: "Print the file id of a name",
		Usage:   "polymorph listfile lookup <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "name"); err != nil {
				return err
			}
			cfg, err := options.load()
			if err != nil {
				return err
			}
			id, err := lookupName(cfg.Paths.Cache, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d\n", id)
			return nil
		},
	}
}

func (a *app) listfileNameCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "name",
		Summary: "Print the name of a file id",
		Usage:   "polymorph listfile name <file-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("name", pflag.ContinueOnError)
			options.register(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, "file-id"); err != nil {
				return err
			}
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid file id %q: %w", args[0], err)
			}
			cfg, err := options.load()
			if err != nil {
				return err
			}
			names, err := listfile.Open(filepath.Join(cfg.Paths.Cache, listfile.FileName))
			if err != nil {
				return err
			}
			defer names.Close()

			name, err := names.Name(uint32(id))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, name)
			return nil
		},
	}
}
