// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package blobcache

import (
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// readRange maps the pages covering [offset, offset+length) read-only
// and copies them out. The caller has checked the range against size.
func readRange(file *os.File, size, offset int64, length int) (data []byte, err error) {
	pageSize := int64(unix.Getpagesize())
	mapStart := offset - offset%pageSize
	mapLength := int(offset - mapStart + int64(length))

	mapping, err := unix.Mmap(int(file.Fd()), mapStart, mapLength, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping %d bytes at %d: %w", mapLength, mapStart, err)
	}
	defer unix.Munmap(mapping)

	// An I/O error on the backing file surfaces as a fault on the
	// mapping. Without this a SIGBUS would crash the process.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("page fault reading at offset %d: %v", offset, r)
		}
	}()

	data = make([]byte, length)
	copy(data, mapping[offset-mapStart:])
	return data, nil
}
