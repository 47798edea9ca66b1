// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package cdn resolves asset identifiers to decoded bytes by driving
// the TACT pipeline against a patch server and its CDN hosts.
//
// [New] performs initialization: it reads the versions and cdns
// manifests for the configured product and region, fetches the build
// and CDN configurations, decodes the root file into a root index, and
// merges every archive index the CDN configuration lists. A failure at
// any step returns an error wrapping tact.ErrConfigFetch and no
// Fetcher. On success the resolved build is persisted as a CBOR
// [BuildRecord] in the cache directory so that an offline Fetcher can
// start without the network.
//
// Every blob (configs, root, indices, archives, and range-fetched
// files) goes through one cached retrieval primitive: a cache hit is
// returned without revalidation; a miss is downloaded from the CDN
// hosts in order, written to the cache atomically, then returned.
// Concurrent requests for one key share a single download.
//
// [Fetcher.FetchFileID] maps a file id through the root index to a
// content key, through the archive index to an archive byte range,
// retrieves that range, and BLTE-decodes it. By default the whole
// archive is downloaded once and sliced locally, trading bandwidth on
// the first access for zero network traffic on every later file in the
// same archive. With Config.RangeRequests only the file's bytes are
// requested and they are cached under the file's content key.
//
// The root and archive indices are immutable once built.
// [Fetcher.Refresh] builds fresh ones and swaps them in atomically;
// in-flight lookups finish against the indices they started with.
package cdn
