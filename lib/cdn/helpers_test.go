// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"io"
	"log/slog"
	"time"

	"github.com/polymorph-tact/polymorph/lib/cdn/cdntest"
	"github.com/polymorph-tact/polymorph/lib/clock"
)

const (
	testProduct = cdntest.Product
	testRegion  = cdntest.Region
	testCDNPath = cdntest.CDNPath
)

func testConfig(server *cdntest.Server, cacheDir string) Config {
	return Config{
		PatchServer: server.URL(),
		Product:     testProduct,
		Region:      testRegion,
		CacheDir:    cacheDir,
		HTTPClient:  server.Client(),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:       clock.Fake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		Concurrency: 4,
	}
}
