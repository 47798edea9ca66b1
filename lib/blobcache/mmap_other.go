// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || linux)

package blobcache

import (
	"io"
	"os"
)

func readRange(file *os.File, size, offset int64, length int) ([]byte, error) {
	data := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(file, offset, int64(length)), data); err != nil {
		return nil, err
	}
	return data, nil
}
