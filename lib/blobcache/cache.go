// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package blobcache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// tempPrefix marks in-progress writes. Entry names never start with a
// dot, so a temporary file is never mistaken for an entry.
const tempPrefix = ".tmp-"

// Cache is a directory of immutable blobs. It is safe for concurrent
// use: concurrent Puts of the same name each write a complete file and
// the last rename wins, which is harmless because entries for one key
// are identical.
type Cache struct {
	dir string
}

// Open returns the cache rooted at dir, creating the directory if
// needed.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: cache directory is required", tact.ErrIO)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory %s: %w", tact.ErrIO, dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file path of the entry name. It does not check that
// the entry exists.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Has reports whether the entry exists.
func (c *Cache) Has(name string) bool {
	if validateName(name) != nil {
		return false
	}
	info, err := os.Stat(c.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Get returns the full contents of an entry.
func (c *Cache) Get(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.Path(name))
	if err != nil {
		return nil, classify(name, "reading", err)
	}
	return data, nil
}

// Put writes data as the entry name, atomically.
func (c *Cache) Put(name string, data []byte) error {
	_, err := c.write(name, func(file *os.File) (int64, error) {
		written, err := file.Write(data)
		return int64(written), err
	})
	return err
}

// PutStream copies r into the entry name, atomically, and returns the
// number of bytes written. If r fails, no entry is created.
func (c *Cache) PutStream(name string, r io.Reader) (int64, error) {
	return c.write(name, func(file *os.File) (int64, error) {
		return io.Copy(file, r)
	})
}

func (c *Cache) write(name string, fill func(*os.File) (int64, error)) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}

	file, err := os.CreateTemp(c.dir, tempPrefix+name+"-*")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temporary file for %s: %w", tact.ErrIO, name, err)
	}
	tempPath := file.Name()
	success := false
	defer func() {
		if !success {
			file.Close()
			os.Remove(tempPath)
		}
	}()

	written, err := fill(file)
	if err != nil {
		return 0, fmt.Errorf("%w: writing %s: %w", tact.ErrIO, name, err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("%w: syncing %s: %w", tact.ErrIO, name, err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("%w: closing %s: %w", tact.ErrIO, name, err)
	}
	if err := os.Rename(tempPath, c.Path(name)); err != nil {
		return 0, fmt.Errorf("%w: renaming %s into place: %w", tact.ErrIO, name, err)
	}

	success = true
	return written, nil
}

// ReadRange returns length bytes of the entry name starting at offset.
// A range that extends past the end of the entry is tact.ErrMalformed:
// the index that produced it disagrees with the archive.
func (c *Cache) ReadRange(name string, offset int64, length int) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("%w: negative range %d+%d in %s", tact.ErrMalformed, offset, length, name)
	}

	file, err := os.Open(c.Path(name))
	if err != nil {
		return nil, classify(name, "opening", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stating %s: %w", tact.ErrIO, name, err)
	}
	if offset+int64(length) > info.Size() {
		return nil, fmt.Errorf("%w: range %d+%d is outside %s (%d bytes)",
			tact.ErrMalformed, offset, length, name, info.Size())
	}
	if length == 0 {
		return []byte{}, nil
	}

	data, err := readRange(file, info.Size(), offset, length)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes at %d of %s: %w", tact.ErrIO, length, offset, name, err)
	}
	return data, nil
}

// validateName keeps entries directly under the cache directory.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: invalid cache entry name %q", tact.ErrIO, name)
	}
	return nil
}

func classify(name, operation string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: cache entry %s", tact.ErrNotFound, name)
	}
	return fmt.Errorf("%w: %s %s: %w", tact.ErrIO, operation, name, err)
}
