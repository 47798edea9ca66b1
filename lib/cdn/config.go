// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/polymorph-tact/polymorph/lib/clock"
)

// Doer issues HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// DefaultConcurrency bounds parallel index and archive downloads when
// Config.Concurrency is zero.
const DefaultConcurrency = 8

// Config holds everything a Fetcher needs. There is no process-wide
// state: several Fetchers with different configs can coexist.
type Config struct {
	// PatchServer is the base URL of the patch server, e.g.
	// "http://us.patch.battle.net:1119". Required unless Offline.
	PatchServer string

	// Product is the product code, e.g. "wow_classic". Required.
	Product string

	// Region selects the manifest rows, e.g. "us". Required.
	Region string

	// CacheDir is the blob cache directory. Required.
	CacheDir string

	// HTTPClient issues every request. Defaults to http.DefaultClient,
	// which has no timeout; callers wanting one configure it here.
	HTTPClient Doer

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock timestamps the build record and download durations.
	// Defaults to clock.Real().
	Clock clock.Clock

	// Concurrency bounds parallel index and archive downloads.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// RangeRequests fetches individual files with HTTP Range requests
	// instead of whole archives.
	RangeRequests bool

	// Offline starts from the persisted build record and serves only
	// what is already cached. Any cache miss is tact.ErrNotFound.
	Offline bool

	// StrictRoot rejects a truncated root file instead of using its
	// complete blocks.
	StrictRoot bool
}

func (c *Config) applyDefaults() error {
	if c.Product == "" {
		return fmt.Errorf("cdn: Product is required")
	}
	if c.Region == "" {
		return fmt.Errorf("cdn: Region is required")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cdn: CacheDir is required")
	}
	if c.PatchServer == "" && !c.Offline {
		return fmt.Errorf("cdn: PatchServer is required unless Offline")
	}
	c.PatchServer = strings.TrimRight(c.PatchServer, "/")

	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return nil
}
