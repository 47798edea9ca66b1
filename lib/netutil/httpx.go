// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP body reads for Polymorph.
//
// Manifests and configuration blobs are small text documents read whole
// with [ReadResponse]; a misbehaving server cannot make the client
// allocate more than [MaxResponseSize]. Archives are not read through
// this package: they are streamed to the cache with io.Copy.
package netutil

import (
	"fmt"
	"io"
)

// MaxResponseSize bounds whole-body reads: 64 MB. The largest text
// document a patch server serves (a CDN configuration listing every
// archive) is a few hundred kilobytes.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes. A
// body longer than the limit is an error rather than silently cut.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// maxErrorBody bounds how much of an error response ends up in an
// error message.
const maxErrorBody = 512

// ErrorBody reads the start of an HTTP error response body for a
// diagnostic message. Read errors are ignored: a partial or empty body
// is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return string(data)
}
