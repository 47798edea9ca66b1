// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package listfile maps file names to file ids.
//
// The root index is keyed by numeric file id only; names come from a
// community listfile, a text file of "id;path" lines. [Listfile.Import]
// loads one into a bbolt database in the cache directory so that name
// lookups survive restarts without re-reading the text file. Names are
// normalized ([Normalize]) on import and lookup: lowercase, forward
// slashes, no leading slash.
package listfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// FileName is the database file name inside the cache directory.
const FileName = "listfile.db"

var (
	namesBucket = []byte("names")
	idsBucket   = []byte("ids")
)

// importBatch is the number of lines written per transaction.
const importBatch = 50000

// Listfile is a persistent name ↔ id table.
type Listfile struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Listfile, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening listfile database %s: %w", tact.ErrIO, path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(namesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(idsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing listfile database %s: %w", tact.ErrIO, path, err)
	}
	return &Listfile{db: db}, nil
}

// Close releases the database.
func (l *Listfile) Close() error {
	return l.db.Close()
}

// Normalize returns the canonical form of a file name.
func Normalize(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	return strings.ToLower(strings.TrimLeft(name, "/"))
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	// Entries is the number of id;path lines stored.
	Entries int

	// Skipped counts blank and comment lines.
	Skipped int
}

// Import loads "id;path" lines from r. Re-importing a name replaces
// its id. A malformed line stops the import with tact.ErrMalformed;
// batches written before it are kept, and importing the corrected file
// again converges to the same table.
func (l *Listfile) Import(r io.Reader) (ImportResult, error) {
	var result ImportResult
	type pair struct {
		id   uint32
		name string
	}
	batch := make([]pair, 0, importBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := l.db.Update(func(tx *bolt.Tx) error {
			names := tx.Bucket(namesBucket)
			ids := tx.Bucket(idsBucket)
			for _, entry := range batch {
				idBytes := encodeID(entry.id)
				// A name moving to a new id takes its reverse entry
				// with it.
				if previous := bytes.Clone(names.Get([]byte(entry.name))); len(previous) == 4 && !bytes.Equal(previous, idBytes) {
					if string(ids.Get(previous)) == entry.name {
						if err := ids.Delete(previous); err != nil {
							return err
						}
					}
				}
				if err := names.Put([]byte(entry.name), idBytes); err != nil {
					return err
				}
				if err := ids.Put(idBytes, []byte(entry.name)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: writing listfile batch: %w", tact.ErrIO, err)
		}
		result.Entries += len(batch)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			result.Skipped++
			continue
		}

		idText, name, found := strings.Cut(line, ";")
		if !found || Normalize(name) == "" {
			return result, fmt.Errorf("%w: listfile line %d: want \"id;path\"", tact.ErrMalformed, lineNumber)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idText), 10, 32)
		if err != nil {
			return result, fmt.Errorf("%w: listfile line %d: file id %q", tact.ErrMalformed, lineNumber, idText)
		}

		batch = append(batch, pair{id: uint32(id), name: Normalize(name)})
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("%w: reading listfile: %w", tact.ErrIO, err)
	}
	return result, flush()
}

// Lookup returns the file id of name. An unknown name is
// tact.ErrNotFound.
func (l *Listfile) Lookup(name string) (uint32, error) {
	normalized := Normalize(name)
	var id uint32
	found := false
	err := l.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(namesBucket).Get([]byte(normalized))
		if len(value) == 4 {
			id = binary.BigEndian.Uint32(value)
			found = true
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: reading listfile: %w", tact.ErrIO, err)
	}
	if !found {
		return 0, fmt.Errorf("%w: %q is not in the listfile", tact.ErrNotFound, normalized)
	}
	return id, nil
}

// Name returns the name last imported for id. An id whose name has
// since moved to another id is tact.ErrNotFound.
func (l *Listfile) Name(id uint32) (string, error) {
	var name string
	err := l.db.View(func(tx *bolt.Tx) error {
		name = string(tx.Bucket(idsBucket).Get(encodeID(id)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: reading listfile: %w", tact.ErrIO, err)
	}
	if name == "" {
		return "", fmt.Errorf("%w: file id %d is not in the listfile", tact.ErrNotFound, id)
	}
	return name, nil
}

// Len returns the number of names stored.
func (l *Listfile) Len() (int, error) {
	var count int
	err := l.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(namesBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: reading listfile: %w", tact.ErrIO, err)
	}
	return count, nil
}

// encodeID uses big-endian so bbolt's byte order matches numeric order.
func encodeID(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}
