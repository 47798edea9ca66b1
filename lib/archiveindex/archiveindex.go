// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package archiveindex

import (
	"encoding/binary"
	"fmt"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// RecordSize is key(16) + length(4) + offset(4).
const RecordSize = tact.KeySize + 8

// Entry locates one content payload inside an archive blob.
type Entry struct {
	Key     tact.ContentKey
	Archive tact.ArchiveKey
	Offset  uint64
	Length  uint32
}

// End returns the exclusive end offset of the payload.
func (e Entry) End() uint64 {
	return e.Offset + uint64(e.Length)
}

// Parse scans one archive index file. A length that is not a multiple
// of [RecordSize] is a format error; trailing bytes are never dropped
// silently.
func Parse(archive tact.ArchiveKey, data []byte) ([]Entry, error) {
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: archive index %s is %d bytes, not a multiple of the %d-byte record size",
			tact.ErrMalformed, archive, len(data), RecordSize)
	}

	entries := make([]Entry, 0, len(data)/RecordSize)
	for offset := 0; offset < len(data); offset += RecordSize {
		record := data[offset : offset+RecordSize]

		var entry Entry
		copy(entry.Key[:], record[:tact.KeySize])
		if entry.Key.IsZero() {
			continue
		}
		entry.Archive = archive
		entry.Length = binary.BigEndian.Uint32(record[tact.KeySize : tact.KeySize+4])
		entry.Offset = uint64(binary.BigEndian.Uint32(record[tact.KeySize+4 : tact.KeySize+8]))
		entries = append(entries, entry)
	}
	return entries, nil
}

// Encode serializes entries as one archive index file. Offsets beyond
// the 32-bit record field are rejected.
func Encode(entries []Entry) ([]byte, error) {
	output := make([]byte, 0, len(entries)*RecordSize)
	for _, entry := range entries {
		if entry.Offset > 0xFFFFFFFF {
			return nil, fmt.Errorf("entry %s: offset %d does not fit a 32-bit record", entry.Key, entry.Offset)
		}
		output = append(output, entry.Key[:]...)
		output = binary.BigEndian.AppendUint32(output, entry.Length)
		output = binary.BigEndian.AppendUint32(output, uint32(entry.Offset))
	}
	return output, nil
}

// Builder merges parsed index files. Not safe for concurrent use.
type Builder struct {
	entries  map[tact.ContentKey]Entry
	archives []tact.ArchiveKey
	seen     map[tact.ArchiveKey]bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		entries: make(map[tact.ContentKey]Entry),
		seen:    make(map[tact.ArchiveKey]bool),
	}
}

// Add merges the entries of one archive's index file. Entries
// overwrite any earlier entry for the same key.
func (b *Builder) Add(archive tact.ArchiveKey, entries []Entry) {
	if !b.seen[archive] {
		b.seen[archive] = true
		b.archives = append(b.archives, archive)
	}
	for _, entry := range entries {
		b.entries[entry.Key] = entry
	}
}

// Build freezes the merged entries. The builder must not be used
// afterwards.
func (b *Builder) Build() *Index {
	index := &Index{entries: b.entries, archives: b.archives}
	b.entries = nil
	b.archives = nil
	b.seen = nil
	return index
}

// Index is the merged, immutable key to location map.
type Index struct {
	entries  map[tact.ContentKey]Entry
	archives []tact.ArchiveKey
}

// Lookup returns the location of key. ok is false when no loaded
// archive index lists it; that is a definitive not-found, not a
// transient failure.
func (idx *Index) Lookup(key tact.ContentKey) (Entry, bool) {
	entry, ok := idx.entries[key]
	return entry, ok
}

// Len returns the number of distinct keys.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Archives returns every archive that contributed an index file, in
// the order they were added.
func (idx *Index) Archives() []tact.ArchiveKey {
	return append([]tact.ArchiveKey(nil), idx.archives...)
}
