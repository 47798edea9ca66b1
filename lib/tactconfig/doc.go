// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package tactconfig parses the text manifests that tell a client
// which build is current and where its data lives.
//
// The patch server answers /<product>/versions and /<product>/cdns
// with pipe-separated tables ([ParseTable]): a typed header line
// (Name!TYPE:size|...), an optional "## seqn = N" sequence comment,
// and one row per region. [ParseVersions] and [ParseCDNs] pick the row
// for a region.
//
// The build and CDN configurations those rows point at are "key =
// value" text blobs ([ParseConfig]). The build configuration names the
// root file; the CDN configuration lists the archives.
package tactconfig
