// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Container format constants.
const (
	// magic is the 4-byte blob signature.
	magic = "BLTE"

	// preambleSize is magic(4) + header size(4).
	preambleSize = 8

	// tablePrefixSize is preamble + table format(1) + chunk count(3).
	tablePrefixSize = 12

	// chunkEntrySize is compressed size(4) + decompressed size(4) +
	// MD5(16).
	chunkEntrySize = 24

	// tableFormat is the only chunk table layout this decoder reads.
	tableFormat = 0x0F

	// lz4HeaderSize is version(1) + decoded size(8) + block shift(1).
	lz4HeaderSize = 10

	lz4Version = 1

	// maxLZ4Ratio bounds how far one compressed LZ4 byte can expand.
	maxLZ4Ratio = 255

	// maxZlibRatio bounds how far one deflate byte can expand.
	maxZlibRatio = 1032
)

// MaxDecodedSize bounds the total decoded output of one blob (1 GiB).
// Blobs declaring more are rejected as malformed rather than allocated.
const MaxDecodedSize = 1 << 30

// preallocateLimit caps the capacity reserved up front from declared
// sizes; larger outputs grow as chunks actually decode.
const preallocateLimit = 64 << 20

// ChunkInfo is one entry of the chunk table.
type ChunkInfo struct {
	// CompressedSize is the payload length including the mode byte.
	CompressedSize uint32

	// DecompressedSize is the decoded length of the chunk.
	DecompressedSize uint32

	// Checksum is the MD5 of the CompressedSize payload bytes.
	Checksum [md5.Size]byte
}

// Header is the parsed container header.
type Header struct {
	// Chunks is the chunk table. Empty when Implicit is true.
	Chunks []ChunkInfo

	// Implicit is true when the header size is zero and the remainder
	// of the blob is a single chunk with no table entry.
	Implicit bool

	// DataOffset is the byte offset of the first chunk payload.
	DataOffset int
}

// ParseHeader validates the signature and chunk table of a blob. Every
// declared count is checked against len(data) before it is trusted.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < len(magic) || string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: not a BLTE blob (invalid magic bytes)", tact.ErrMalformed)
	}
	if len(data) < preambleSize {
		return nil, fmt.Errorf("%w: BLTE header size field: have %d bytes, need %d",
			tact.ErrTruncated, len(data), preambleSize)
	}

	headerSize := binary.BigEndian.Uint32(data[4:8])
	if headerSize == 0 {
		return &Header{Implicit: true, DataOffset: preambleSize}, nil
	}

	if len(data) < tablePrefixSize {
		return nil, fmt.Errorf("%w: BLTE chunk table prefix: have %d bytes, need %d",
			tact.ErrTruncated, len(data), tablePrefixSize)
	}
	if data[8] != tableFormat {
		return nil, fmt.Errorf("%w: BLTE chunk table format 0x%02x is not supported",
			tact.ErrMalformed, data[8])
	}

	chunkCount := uint32(data[9])<<16 | uint32(data[10])<<8 | uint32(data[11])
	if chunkCount == 0 {
		return nil, fmt.Errorf("%w: BLTE chunk table declares zero chunks", tact.ErrMalformed)
	}

	expectedSize := uint64(tablePrefixSize) + uint64(chunkCount)*chunkEntrySize
	if uint64(headerSize) != expectedSize {
		return nil, fmt.Errorf("%w: BLTE header size %d does not match %d chunks (want %d)",
			tact.ErrMalformed, headerSize, chunkCount, expectedSize)
	}
	if uint64(len(data)) < expectedSize {
		return nil, fmt.Errorf("%w: BLTE chunk table of %d entries needs %d bytes, have %d",
			tact.ErrTruncated, chunkCount, expectedSize, len(data))
	}

	chunks := make([]ChunkInfo, chunkCount)
	offset := tablePrefixSize
	for i := range chunks {
		entry := data[offset : offset+chunkEntrySize]
		chunks[i].CompressedSize = binary.BigEndian.Uint32(entry[0:4])
		chunks[i].DecompressedSize = binary.BigEndian.Uint32(entry[4:8])
		copy(chunks[i].Checksum[:], entry[8:24])
		offset += chunkEntrySize
	}

	return &Header{Chunks: chunks, DataOffset: int(expectedSize)}, nil
}

// Decode unwraps a BLTE blob into its original bytes, concatenating the
// decoded chunks in table order. It has no side effects.
func Decode(data []byte) ([]byte, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[header.DataOffset:]

	if header.Implicit {
		decoded, err := decodeChunk(body, -1)
		if err != nil {
			return nil, fmt.Errorf("implicit chunk: %w", err)
		}
		return decoded, nil
	}

	var declaredTotal uint64
	for _, chunk := range header.Chunks {
		declaredTotal += uint64(chunk.DecompressedSize)
	}
	if declaredTotal > MaxDecodedSize {
		return nil, fmt.Errorf("%w: BLTE blob declares %d decoded bytes (limit %d)",
			tact.ErrMalformed, declaredTotal, MaxDecodedSize)
	}

	capacity := min(declaredTotal, uint64(len(body))*maxZlibRatio, preallocateLimit)
	output := make([]byte, 0, capacity)

	var offset uint64
	for i, chunk := range header.Chunks {
		end := offset + uint64(chunk.CompressedSize)
		if end > uint64(len(body)) {
			return nil, fmt.Errorf("%w: chunk %d declares %d bytes at offset %d, blob body has %d",
				tact.ErrTruncated, i, chunk.CompressedSize, offset, len(body))
		}
		payload := body[offset:end]

		if sum := md5.Sum(payload); sum != chunk.Checksum {
			return nil, fmt.Errorf("%w: chunk %d: expected %x, got %x",
				tact.ErrChecksumMismatch, i, chunk.Checksum, sum)
		}

		decoded, err := decodeChunk(payload, int64(chunk.DecompressedSize))
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		output = append(output, decoded...)
		offset = end
	}

	if offset != uint64(len(body)) {
		return nil, fmt.Errorf("%w: %d trailing bytes after the last chunk",
			tact.ErrMalformed, uint64(len(body))-offset)
	}

	return output, nil
}

// decodeChunk decodes one chunk payload (mode byte included). A
// negative size means the decoded size is not declared (implicit
// chunk); otherwise the output must be exactly size bytes.
func decodeChunk(payload []byte, size int64) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty chunk has no mode byte", tact.ErrMalformed)
	}
	mode := Mode(payload[0])
	body := payload[1:]

	switch mode {
	case ModeRaw:
		if size >= 0 && int64(len(body)) != size {
			return nil, fmt.Errorf("%w: raw chunk is %d bytes, table declares %d",
				tact.ErrMalformed, len(body), size)
		}
		return body, nil

	case ModeZlib:
		return inflate(body, size)

	case ModeLZ4:
		return decodeLZ4(body, size)

	case ModeFrame:
		return nil, fmt.Errorf("%w: recursive BLTE frame", tact.ErrUnsupportedEncoding)

	case ModeEncrypted:
		return nil, fmt.Errorf("%w: encrypted chunk", tact.ErrUnsupportedEncoding)

	default:
		return nil, fmt.Errorf("%w: chunk mode %s", tact.ErrUnsupportedEncoding, mode)
	}
}

func inflate(body []byte, size int64) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", tact.ErrMalformed, err)
	}
	defer reader.Close()

	if size < 0 {
		decoded, err := io.ReadAll(io.LimitReader(reader, MaxDecodedSize+1))
		if err != nil {
			return nil, fmt.Errorf("%w: zlib stream: %v", tact.ErrMalformed, err)
		}
		if len(decoded) > MaxDecodedSize {
			return nil, fmt.Errorf("%w: zlib stream exceeds %d bytes", tact.ErrMalformed, MaxDecodedSize)
		}
		return decoded, nil
	}

	// Grow with the data actually inflated; the declared size is only
	// trusted as far as the compressed body could produce it.
	capacity := min(size, int64(len(body))*maxZlibRatio, preallocateLimit)
	buffer := bytes.NewBuffer(make([]byte, 0, capacity))
	if _, err := buffer.ReadFrom(io.LimitReader(reader, size+1)); err != nil {
		return nil, fmt.Errorf("%w: zlib stream: %v", tact.ErrMalformed, err)
	}
	switch {
	case int64(buffer.Len()) < size:
		return nil, fmt.Errorf("%w: zlib stream shorter than declared %d bytes (got %d)",
			tact.ErrMalformed, size, buffer.Len())
	case int64(buffer.Len()) > size:
		return nil, fmt.Errorf("%w: zlib stream longer than declared %d bytes", tact.ErrMalformed, size)
	}
	return buffer.Bytes(), nil
}

func decodeLZ4(body []byte, size int64) ([]byte, error) {
	if len(body) < lz4HeaderSize {
		return nil, fmt.Errorf("%w: lz4 chunk header: have %d bytes, need %d",
			tact.ErrTruncated, len(body), lz4HeaderSize)
	}
	if body[0] != lz4Version {
		return nil, fmt.Errorf("%w: lz4 chunk version %d", tact.ErrUnsupportedEncoding, body[0])
	}

	decodedSize := binary.BigEndian.Uint64(body[1:9])
	blockShift := body[9]
	if decodedSize > MaxDecodedSize {
		return nil, fmt.Errorf("%w: lz4 chunk declares %d bytes (limit %d)",
			tact.ErrMalformed, decodedSize, MaxDecodedSize)
	}
	if size >= 0 && decodedSize != uint64(size) {
		return nil, fmt.Errorf("%w: lz4 chunk declares %d bytes, table declares %d",
			tact.ErrMalformed, decodedSize, size)
	}
	if blockShift >= 32 || decodedSize > 1<<blockShift {
		return nil, fmt.Errorf("%w: multi-block lz4 chunk (%d bytes, block shift %d)",
			tact.ErrUnsupportedEncoding, decodedSize, blockShift)
	}

	// An LZ4 block expands at most maxLZ4Ratio times.
	if compressed := uint64(len(body) - lz4HeaderSize); decodedSize > compressed*maxLZ4Ratio {
		return nil, fmt.Errorf("%w: lz4 chunk declares %d bytes from %d compressed bytes",
			tact.ErrMalformed, decodedSize, compressed)
	}

	decoded := make([]byte, decodedSize)
	if decodedSize == 0 {
		return decoded, nil
	}
	read, err := lz4.UncompressBlock(body[lz4HeaderSize:], decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4 decompress: %v", tact.ErrMalformed, err)
	}
	if uint64(read) != decodedSize {
		return nil, fmt.Errorf("%w: lz4 decompress: got %d bytes, expected %d",
			tact.ErrMalformed, read, decodedSize)
	}
	return decoded, nil
}
