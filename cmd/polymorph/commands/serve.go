// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/polymorph-tact/polymorph/cmd/polymorph/cli"
	"github.com/polymorph-tact/polymorph/lib/assetserver"
	"github.com/polymorph-tact/polymorph/lib/cdn"
	"github.com/polymorph-tact/polymorph/lib/config"
	"github.com/polymorph-tact/polymorph/lib/listfile"
	"github.com/polymorph-tact/polymorph/lib/service"
)

type serveOptions struct {
	globalOptions
	port    int
	offline bool
	refresh time.Duration
}

func (a *app) serveCommand() *cli.Command {
	var options serveOptions
	return &cli.Command{
		Name:    "serve",
		Summary: "Serve assets over HTTP",
		Description: `Serve decoded assets over HTTP:

  GET /id/{file-id}   file by numeric id
  GET /name/{path}    file by listfile path
  GET /status         build and cache summary (JSON)

With --no-fetch the server starts from the build recorded by the last
init and answers only from the cache.`,
		Usage: "polymorph serve [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			options.globalOptions.register(flagSet)
			flagSet.IntVarP(&options.port, "port", "p", 0, "listen port (default: serve.port, 8081)")
			flagSet.BoolVarP(&options.offline, "no-fetch", "n", false, "serve only the cached build without network access")
			flagSet.DurationVar(&options.refresh, "refresh", 0, "re-resolve the build at this interval (0 disables)")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Serve on the default port, refreshing the build hourly",
				Command:     "polymorph serve --refresh 1h",
			},
			{
				Description: "Serve an already initialized cache offline",
				Command:     "polymorph serve --port 9000 --no-fetch",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return a.runServe(ctx, &options)
		},
	}
}

func (a *app) runServe(ctx context.Context, options *serveOptions) error {
	cfg, err := options.load()
	if err != nil {
		return err
	}
	if options.port != 0 {
		cfg.Serve.Port = options.port
	}
	logger := a.newLogger(options.verbose).With("command", "serve")

	handler, fetcher, names, err := newAssetHandler(ctx, cfg, options.offline, logger)
	if err != nil {
		return err
	}
	defer names.Close()

	if options.refresh > 0 && !options.offline {
		go refreshLoop(ctx, fetcher, options.refresh, logger)
	}

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.ListenAddress(),
		Handler:         handler,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		WriteTimeout:    cfg.WriteTimeout(),
		Logger:          logger,
	})
	return server.Serve(ctx)
}

// newAssetHandler initializes the fetcher and opens the listfile
// database behind an asset server. The caller closes the listfile.
func newAssetHandler(ctx context.Context, cfg *config.Config, offline bool, logger *slog.Logger) (*assetserver.Server, *cdn.Fetcher, *listfile.Listfile, error) {
	fetcherCfg := fetcherConfig(cfg, logger)
	fetcherCfg.Offline = offline
	fetcher, err := cdn.New(ctx, fetcherCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	names, err := listfile.Open(filepath.Join(cfg.Paths.Cache, listfile.FileName))
	if err != nil {
		return nil, nil, nil, err
	}

	handler := assetserver.New(assetserver.Config{
		Source: fetcher,
		Names:  names,
		Logger: logger,
	})
	return handler, fetcher, names, nil
}

// refreshLoop re-resolves the build every interval until ctx ends. A
// failed refresh keeps the current build.
func refreshLoop(ctx context.Context, fetcher *cdn.Fetcher, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		changed, err := fetcher.Refresh(ctx)
		if err != nil {
			logger.Warn("build refresh failed", "error", err)
			continue
		}
		if changed {
			record := fetcher.Record()
			logger.Info("build changed", "build", record.BuildName, "versions_name", record.VersionsName)
		}
	}
}
