// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package rootfile parses the root file: the index from numeric file
// identifiers to content keys.
//
// The root file is BLTE-encoded. Decoded, it is a run of blocks, each
// a little-endian header (entry count, content flags, locale flags),
// a table of uint32 file id deltas, and a table of (content key, name
// hash) entries of the same length. Ids are rebuilt per block from 0:
//
//	id += delta; record id; id++
//
// so a block with deltas [0, 2] covers ids 0 and 3. Ids repeat across
// blocks (one block per locale or content flag set); the block parsed
// last wins.
//
// A clean end of data between blocks ends parsing normally. A block
// whose header or tables run past the end of the data also ends
// parsing, but the index records that it was truncated and where, so
// callers can decide whether a partial index is acceptable. Nothing
// after a truncated block is read: blocks are only delimited by their
// own counts, so there is no way to resynchronize.
package rootfile
