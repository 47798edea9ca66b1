// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package rootfile

import (
	"encoding/binary"
	"fmt"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// File is one id to key mapping handed to [EncodeBlocks].
type File struct {
	ID         uint32
	ContentKey tact.ContentKey
	NameHash   uint64
}

// Block is one block handed to [EncodeBlocks]. Files must be sorted by
// strictly increasing ID.
type Block struct {
	ContentFlags uint32
	LocaleFlags  uint32
	Files        []File
}

// EncodeBlocks serializes blocks into decoded root bytes, computing the
// id delta table from each block's file ids. Wrap the result with
// blte to produce a root file blob.
func EncodeBlocks(blocks []Block) ([]byte, error) {
	var output []byte
	for blockIndex, block := range blocks {
		var header [blockHeaderSize]byte
		binary.LittleEndian.PutUint32(header[0:4], uint32(len(block.Files)))
		binary.LittleEndian.PutUint32(header[4:8], block.ContentFlags)
		binary.LittleEndian.PutUint32(header[8:12], block.LocaleFlags)
		output = append(output, header[:]...)

		var next uint32
		for i, file := range block.Files {
			if i > 0 && file.ID < next {
				return nil, fmt.Errorf("block %d: file id %d is not greater than previous id %d",
					blockIndex, file.ID, next-1)
			}
			output = binary.LittleEndian.AppendUint32(output, file.ID-next)
			next = file.ID + 1
		}
		for _, file := range block.Files {
			output = append(output, file.ContentKey[:]...)
			output = binary.LittleEndian.AppendUint64(output, file.NameHash)
		}
	}
	return output, nil
}
