// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package blte decodes the BLTE block container format that wraps every
// payload served by the CDN: root files, archive entries, and most
// other blobs.
//
// A BLTE blob is a 4-byte "BLTE" signature, a big-endian header size,
// and either a single implicit chunk (header size zero) or a chunk
// table followed by the chunk payloads. Each chunk table entry carries
// the compressed size, decompressed size, and MD5 of the compressed
// bytes. Every chunk payload starts with a one-byte [Mode]:
//
//   - 'N' raw bytes
//   - 'Z' zlib (deflate) stream
//   - '4' single-block LZ4
//   - 'F' recursive frame and 'E' encrypted, both rejected with
//     tact.ErrUnsupportedEncoding
//
// Input is untrusted. [Decode] validates every declared size against
// the bytes actually present and bounds total output by
// [MaxDecodedSize], so a hostile header cannot trigger oversized
// allocations. Decoding is all-or-nothing: on error no output is
// returned.
//
// [Builder] produces BLTE blobs. The pipeline itself only consumes
// BLTE, but tests and fixture tooling need an encoder that agrees with
// the decoder byte for byte.
package blte
