// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobcache is the local content-addressed cache of CDN blobs.
//
// Each blob is one file directly under the cache directory, named by
// the lowercase hex of its key (archive indices carry an ".index"
// suffix). A file that exists is complete: every write goes to a
// temporary file in the same directory and is renamed into place, so a
// crash or a failed download never leaves a partial entry. Nothing in
// this package deletes entries and nothing revalidates them.
//
// [Cache.ReadRange] slices a byte range out of a cached archive through
// a read-only memory map, so extracting one file from a multi-hundred
// megabyte archive touches only the pages it needs.
//
// Failures are reported as tact.ErrNotFound (no such entry),
// tact.ErrMalformed (a range outside the cached blob), or tact.ErrIO
// (everything the filesystem refuses).
package blobcache
