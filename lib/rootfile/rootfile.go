// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package rootfile

import (
	"encoding/binary"
	"fmt"

	"github.com/polymorph-tact/polymorph/lib/blte"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Layout constants.
const (
	// blockHeaderSize is count(4) + content flags(4) + locale flags(4).
	blockHeaderSize = 12

	// deltaSize is one uint32 entry of the id delta table.
	deltaSize = 4

	// entrySize is content key(16) + name hash(8).
	entrySize = tact.KeySize + 8
)

// Entry is one root record. Immutable once parsed.
type Entry struct {
	ContentKey   tact.ContentKey
	NameHash     uint64
	ContentFlags uint32
	LocaleFlags  uint32
}

// BlockInfo summarizes one fully parsed block.
type BlockInfo struct {
	Count        uint32
	ContentFlags uint32
	LocaleFlags  uint32
}

// Index maps file ids to root entries. It is never mutated after
// Parse returns, so concurrent lookups need no locking.
type Index struct {
	entries     map[uint32]Entry
	blocks      []BlockInfo
	truncated   bool
	truncatedAt int
}

// Parse decodes a BLTE-encoded root file. Decode failures are returned
// as errors; a truncated block is not an error and is reported by
// [Index.Truncated].
func Parse(blob []byte) (*Index, error) {
	decoded, err := blte.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding root file: %w", err)
	}
	return ParseDecoded(decoded), nil
}

// ParseDecoded builds an index from already decoded root bytes.
func ParseDecoded(data []byte) *Index {
	index := &Index{entries: make(map[uint32]Entry)}

	offset := 0
	for offset < len(data) {
		remaining := data[offset:]
		if len(remaining) < blockHeaderSize {
			index.truncated, index.truncatedAt = true, offset
			break
		}

		info := BlockInfo{
			Count:        binary.LittleEndian.Uint32(remaining[0:4]),
			ContentFlags: binary.LittleEndian.Uint32(remaining[4:8]),
			LocaleFlags:  binary.LittleEndian.Uint32(remaining[8:12]),
		}
		blockSize := uint64(blockHeaderSize) + uint64(info.Count)*(deltaSize+entrySize)
		if uint64(len(remaining)) < blockSize {
			index.truncated, index.truncatedAt = true, offset
			break
		}

		deltas := remaining[blockHeaderSize:]
		records := deltas[int(info.Count)*deltaSize:]

		var fileID uint32
		for i := 0; i < int(info.Count); i++ {
			fileID += binary.LittleEndian.Uint32(deltas[i*deltaSize:])

			record := records[i*entrySize : (i+1)*entrySize]
			var entry Entry
			copy(entry.ContentKey[:], record[:tact.KeySize])
			entry.NameHash = binary.LittleEndian.Uint64(record[tact.KeySize:])
			entry.ContentFlags = info.ContentFlags
			entry.LocaleFlags = info.LocaleFlags
			index.entries[fileID] = entry

			fileID++
		}

		index.blocks = append(index.blocks, info)
		offset += int(blockSize)
	}

	return index
}

// Lookup returns the content key most recently recorded for fileID.
func (idx *Index) Lookup(fileID uint32) (tact.ContentKey, bool) {
	entry, ok := idx.entries[fileID]
	return entry.ContentKey, ok
}

// Entry returns the full root entry for fileID.
func (idx *Index) Entry(fileID uint32) (Entry, bool) {
	entry, ok := idx.entries[fileID]
	return entry, ok
}

// Len returns the number of distinct file ids.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Blocks returns the fully parsed blocks in file order.
func (idx *Index) Blocks() []BlockInfo {
	return append([]BlockInfo(nil), idx.blocks...)
}

// Truncated reports whether parsing stopped at a block that overran the
// data, and the decoded byte offset where that block started.
func (idx *Index) Truncated() (bool, int) {
	return idx.truncated, idx.truncatedAt
}
