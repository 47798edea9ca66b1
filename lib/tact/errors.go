// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tact

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the pipeline wraps exactly one
// of these (ErrTruncated additionally wraps ErrMalformed).
var (
	// ErrNetwork is a transport failure talking to the patch server or
	// a CDN host. Callers may retry; nothing retries internally.
	ErrNetwork = errors.New("tact: network error")

	// ErrConfigFetch marks a failed initialization step. No fetcher is
	// produced when it is returned.
	ErrConfigFetch = errors.New("tact: configuration fetch failed")

	// ErrMalformed is a structural violation in server-supplied bytes.
	ErrMalformed = errors.New("tact: malformed data")

	// ErrTruncated means the input ended before a declared structure.
	ErrTruncated = fmt.Errorf("%w: truncated input", ErrMalformed)

	// ErrChecksumMismatch is an integrity failure on a decoded chunk.
	ErrChecksumMismatch = errors.New("tact: checksum mismatch")

	// ErrUnsupportedEncoding is a recognized but unimplemented (or
	// unknown) chunk encoding mode.
	ErrUnsupportedEncoding = errors.New("tact: unsupported encoding")

	// ErrNotFound is a legitimate negative result: the identifier is
	// absent from an index, the listfile, or the CDN.
	ErrNotFound = errors.New("tact: not found")

	// ErrIO is a local cache read or write failure.
	ErrIO = errors.New("tact: local I/O error")
)
