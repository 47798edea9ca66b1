// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tact

import (
	"encoding/hex"
	"fmt"
)

// KeySize is the byte length of every CDN hash.
const KeySize = 16

// ContentKey is the hash of un-encoded content. Two keys are equal iff
// their bytes are equal.
type ContentKey [KeySize]byte

// ArchiveKey names an archive blob and its index file on the CDN.
type ArchiveKey [KeySize]byte

// String returns the lowercase hex rendering used in CDN paths, cache
// file names, and logs.
func (k ContentKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether every byte of the key is zero. Zero keys appear
// as padding in index files and never address real content.
func (k ContentKey) IsZero() bool {
	return k == ContentKey{}
}

// String returns the lowercase hex rendering of the archive key.
func (k ArchiveKey) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether every byte of the key is zero.
func (k ArchiveKey) IsZero() bool {
	return k == ArchiveKey{}
}

// ParseContentKey parses a 32-character hex string.
func ParseContentKey(text string) (ContentKey, error) {
	var key ContentKey
	if err := parseHex(text, key[:]); err != nil {
		return key, fmt.Errorf("parsing content key: %w", err)
	}
	return key, nil
}

// ParseArchiveKey parses a 32-character hex string.
func ParseArchiveKey(text string) (ArchiveKey, error) {
	var key ArchiveKey
	if err := parseHex(text, key[:]); err != nil {
		return key, fmt.Errorf("parsing archive key: %w", err)
	}
	return key, nil
}

// MarshalText implements encoding.TextMarshaler so keys serialize as
// hex strings in CBOR and JSON.
func (k ContentKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ContentKey) UnmarshalText(text []byte) error {
	parsed, err := ParseContentKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k ArchiveKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ArchiveKey) UnmarshalText(text []byte) error {
	parsed, err := ParseArchiveKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func parseHex(text string, destination []byte) error {
	if len(text) != hex.EncodedLen(len(destination)) {
		return fmt.Errorf("%w: %q is %d hex characters, want %d",
			ErrMalformed, text, len(text), hex.EncodedLen(len(destination)))
	}
	if _, err := hex.Decode(destination, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
