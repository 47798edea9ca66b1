// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package blte

import "fmt"

// Mode is the one-byte encoding tag at the start of every chunk
// payload. The values are wire constants.
type Mode byte

const (
	// ModeRaw stores the chunk verbatim.
	ModeRaw Mode = 'N'

	// ModeZlib stores a zlib-wrapped deflate stream.
	ModeZlib Mode = 'Z'

	// ModeLZ4 stores a version byte, a big-endian uint64 decoded
	// size, a block-shift byte, and one LZ4 block.
	ModeLZ4 Mode = '4'

	// ModeFrame nests another BLTE blob inside the chunk.
	ModeFrame Mode = 'F'

	// ModeEncrypted stores a Salsa20/ARC4 encrypted chunk keyed by a
	// named key the client must already hold.
	ModeEncrypted Mode = 'E'
)

// String returns the human-readable name of a mode.
func (mode Mode) String() string {
	switch mode {
	case ModeRaw:
		return "raw"
	case ModeZlib:
		return "zlib"
	case ModeLZ4:
		return "lz4"
	case ModeFrame:
		return "frame"
	case ModeEncrypted:
		return "encrypted"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(mode))
	}
}
