// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer.
//
//	region := testutil.UniqueID("region") // "region-1", "region-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}

// Key returns a content key whose bytes are seed, seed+1, ... seed+15.
func Key(seed byte) tact.ContentKey {
	var key tact.ContentKey
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

// ArchiveKey is Key for archive keys.
func ArchiveKey(seed byte) tact.ArchiveKey {
	return tact.ArchiveKey(Key(seed))
}
