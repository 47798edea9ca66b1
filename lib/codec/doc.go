// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Polymorph's standard CBOR encoding
// configuration.
//
// CBOR is used for on-disk state in the cache directory (the build
// record written by init and read back in offline mode). The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items, so the same
// record always produces identical bytes.
//
//	data, err := codec.Marshal(record)
//	err = codec.Unmarshal(data, &record)
//
// Types implementing encoding.TextMarshaler (content and archive keys)
// are written as CBOR text strings, which keeps cache state readable
// with a CBOR diagnostic dump.
package codec
