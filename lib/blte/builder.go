// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// maxChunkCount is the largest count the 24-bit table field can hold.
const maxChunkCount = 1<<24 - 1

// Builder accumulates encoded chunks and writes them as a BLTE blob
// with a chunk table.
//
// Typical usage:
//
//	builder := NewBuilder()
//	builder.AddChunk(data, ModeZlib)
//	// ... add more chunks ...
//	err := builder.Flush(writer)
type Builder struct {
	table    []ChunkInfo
	payloads [][]byte
}

// NewBuilder creates a builder for a new blob.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddChunk encodes data with mode and appends it. LZ4 falls back to
// ModeRaw when the data does not compress; the mode actually used is
// returned. Modes the decoder rejects cannot be encoded.
func (b *Builder) AddChunk(data []byte, mode Mode) (Mode, error) {
	if len(b.table) == maxChunkCount {
		return 0, fmt.Errorf("BLTE blob already holds the maximum %d chunks", maxChunkCount)
	}
	payload, actual, err := encodeChunk(data, mode)
	if err != nil {
		return 0, err
	}
	b.table = append(b.table, ChunkInfo{
		CompressedSize:   uint32(len(payload)),
		DecompressedSize: uint32(len(data)),
		Checksum:         md5.Sum(payload),
	})
	b.payloads = append(b.payloads, payload)
	return actual, nil
}

// ChunkCount returns the number of chunks added so far.
func (b *Builder) ChunkCount() int {
	return len(b.table)
}

// Flush writes the complete blob to w and resets the builder.
//
// Returns an error if the builder is empty (no chunks added).
func (b *Builder) Flush(w io.Writer) error {
	if len(b.table) == 0 {
		return fmt.Errorf("cannot flush empty BLTE blob")
	}

	var header bytes.Buffer
	header.Grow(tablePrefixSize + len(b.table)*chunkEntrySize)
	header.WriteString(magic)

	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(tablePrefixSize+len(b.table)*chunkEntrySize))
	header.Write(word[:])

	count := uint32(len(b.table))
	header.Write([]byte{tableFormat, byte(count >> 16), byte(count >> 8), byte(count)})

	for _, entry := range b.table {
		binary.BigEndian.PutUint32(word[:], entry.CompressedSize)
		header.Write(word[:])
		binary.BigEndian.PutUint32(word[:], entry.DecompressedSize)
		header.Write(word[:])
		header.Write(entry.Checksum[:])
	}

	if _, err := w.Write(header.Bytes()); err != nil {
		return fmt.Errorf("writing BLTE header: %w", err)
	}
	for i, payload := range b.payloads {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing BLTE chunk %d: %w", i, err)
		}
	}

	b.table = b.table[:0]
	b.payloads = b.payloads[:0]
	return nil
}

// Bytes flushes the builder into a new byte slice.
func (b *Builder) Bytes() ([]byte, error) {
	var buffer bytes.Buffer
	if err := b.Flush(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// EncodeSingle produces the header-less form: a zero header size
// followed by one implicit chunk.
func EncodeSingle(data []byte, mode Mode) ([]byte, error) {
	payload, _, err := encodeChunk(data, mode)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, preambleSize, preambleSize+len(payload))
	copy(blob, magic)
	return append(blob, payload...), nil
}

func encodeChunk(data []byte, mode Mode) ([]byte, Mode, error) {
	switch mode {
	case ModeRaw:
		return rawChunk(data), ModeRaw, nil

	case ModeZlib:
		var buffer bytes.Buffer
		buffer.WriteByte(byte(ModeZlib))
		writer := zlib.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			return nil, 0, fmt.Errorf("zlib compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, 0, fmt.Errorf("zlib compress: %w", err)
		}
		return buffer.Bytes(), ModeZlib, nil

	case ModeLZ4:
		payload, ok, err := lz4Chunk(data)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return rawChunk(data), ModeRaw, nil
		}
		return payload, ModeLZ4, nil

	default:
		return nil, 0, fmt.Errorf("%w: cannot encode mode %s", tact.ErrUnsupportedEncoding, mode)
	}
}

func rawChunk(data []byte) []byte {
	payload := make([]byte, 1+len(data))
	payload[0] = byte(ModeRaw)
	copy(payload[1:], data)
	return payload
}

// lz4Chunk returns ok=false when the data is empty or incompressible.
func lz4Chunk(data []byte) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, nil
	}
	destination := make([]byte, 1+lz4HeaderSize+lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination[1+lz4HeaderSize:], nil)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || written >= len(data) {
		return nil, false, nil
	}

	destination[0] = byte(ModeLZ4)
	destination[1] = lz4Version
	binary.BigEndian.PutUint64(destination[2:10], uint64(len(data)))
	destination[10] = byte(bits.Len(uint(len(data) - 1)))
	return destination[:1+lz4HeaderSize+written], true, nil
}
