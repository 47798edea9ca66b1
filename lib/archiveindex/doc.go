// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package archiveindex maps content keys to their location inside
// archive blobs.
//
// Each archive on the CDN has an index file: a flat run of 24-byte
// records (content key, big-endian uint32 length, big-endian uint32
// offset). The archive a record points into is not stored in the
// record; it is the archive whose index file is being parsed. Records
// with an all-zero key are block padding and are skipped.
//
// Index files are merged with a [Builder] in the order the CDN
// configuration lists them. When two files list the same key, the file
// added later wins: archive indices are periodically superseded, and
// the newest listing is the one to trust. [Builder.Build] freezes the
// result into an immutable [Index] that any number of goroutines may
// read.
package archiveindex
