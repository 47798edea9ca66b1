// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the polymorph command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/config"
	"github.com/polymorph-tact/polymorph/lib/version"
)

// app carries what every command writes to.
type app struct {
	stdout    io.Writer
	newLogger func(verbose bool) *slog.Logger
}

// Root builds the complete command tree writing to os.Stdout.
func Root() *cli.Command {
	return (&app{stdout: os.Stdout, newLogger: cli.NewCommandLogger}).root()
}

func (a *app) root() *cli.Command {
	var showVersion bool
	return &cli.Command{
		Name: "polymorph",
		Description: `Polymorph: resolve game client assets from a TACT content CDN.

A numeric file id is looked up in the build's root file, its content key
in the archive indices, and the matching byte range of an archive is
fetched, cached, and decoded.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("polymorph", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Subcommands: []*cli.Command{
			a.initCommand(),
			a.getIDCommand(),
			a.getNameCommand(),
			a.serveCommand(),
			a.listfileCommand(),
			a.infoCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Resolve the current build and download every archive",
				Command:     "polymorph init --cache-path ~/.cache/polymorph",
			},
			{
				Description: "Write one file by its numeric id",
				Command:     "polymorph get-id 136235 --out-path icon.blp",
			},
			{
				Description: "Serve cached assets without touching the network",
				Command:     "polymorph serve --port 8081 --no-fetch",
			},
		},
		Run: func(_ context.Context, args []string) error {
			if !showVersion {
				return fmt.Errorf("subcommand required\n\nRun 'polymorph --help' for usage.")
			}
			fmt.Fprintf(a.stdout, "polymorph %s\n", version.Full())
			return nil
		},
	}
}

// globalOptions are the flags every command accepts.
type globalOptions struct {
	cachePath  string
	configPath string
	verbose    bool
}

func (o *globalOptions) register(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.cachePath, "cache-path", "c", "", "cache directory (overrides paths.cache)")
	flagSet.StringVar(&o.configPath, "config", "", "YAML config file (default: $"+config.EnvironmentVariable+")")
	flagSet.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output")
}

// load resolves the configuration: the --config file, else the
// POLYMORPH_CONFIG file, else defaults; then flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.cachePath != "" {
		cfg.Paths.Cache = o.cachePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fetcherConfig maps the file configuration onto a cdn.Config.
func fetcherConfig(cfg *config.Config, logger *slog.Logger) cdn.Config {
	return cdn.Config{
		PatchServer:   cfg.PatchServer,
		Product:       cfg.Product,
		Region:        cfg.Region,
		CacheDir:      cfg.Paths.Cache,
		HTTPClient:    &http.Client{Timeout: cfg.RequestTimeout()},
		Logger:        logger,
		Concurrency:   cfg.Fetch.Concurrency,
		RangeRequests: cfg.Fetch.RangeRequests,
		StrictRoot:    cfg.Fetch.StrictRoot,
	}
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, names ...string) error {
	if len(args) < len(names) {
		return fmt.Errorf("missing argument <%s>", names[len(args)])
	}
	if len(args) > len(names) {
		return fmt.Errorf("unexpected argument %q", args[len(names)])
	}
	return nil
}
