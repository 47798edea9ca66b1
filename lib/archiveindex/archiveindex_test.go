// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package archiveindex

import (
	"errors"
	"testing"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

func contentKey(seed byte) tact.ContentKey {
	var key tact.ContentKey
	for i := range key {
		key[i] = seed ^ byte(i*7+1)
	}
	return key
}

func mustEncode(t *testing.T, entries []Entry) []byte {
	t.Helper()
	data, err := Encode(entries)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return data
}

func TestParseRecords(t *testing.T) {
	archive := tact.ArchiveKey{0xaa}
	want := []Entry{
		{Key: contentKey(1), Archive: archive, Offset: 0, Length: 100},
		{Key: contentKey(2), Archive: archive, Offset: 100, Length: 4000},
		{Key: contentKey(3), Archive: archive, Offset: 0xFFFFFF00, Length: 0xFF},
	}

	got, err := Parse(archive, mustEncode(t, want))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Parse returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if got[2].End() != 0xFFFFFFFF {
		t.Errorf("End() = %d, want %d", got[2].End(), uint64(0xFFFFFFFF))
	}
}

func TestParseSkipsPadding(t *testing.T) {
	archive := tact.ArchiveKey{0xbb}
	data := mustEncode(t, []Entry{
		{Key: contentKey(1), Length: 10},
		{},
		{},
		{Key: contentKey(2), Offset: 10, Length: 20},
	})

	got, err := Parse(archive, data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Parse returned %d entries, want 2 (padding skipped)", len(got))
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	data := mustEncode(t, []Entry{{Key: contentKey(1), Length: 1}})
	for _, extra := range []int{1, RecordSize - 1} {
		padded := append(append([]byte(nil), data...), make([]byte, extra)...)
		if _, err := Parse(tact.ArchiveKey{1}, padded); !errors.Is(err, tact.ErrMalformed) {
			t.Errorf("%d trailing bytes: error = %v, want ErrMalformed", extra, err)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse(tact.ArchiveKey{1}, nil)
	if err != nil {
		t.Fatalf("Parse(empty) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Parse(empty) returned %d entries", len(got))
	}
}

func TestMergeLaterIndexWins(t *testing.T) {
	archiveA := tact.ArchiveKey{0xa}
	archiveB := tact.ArchiveKey{0xb}

	shared := []tact.ContentKey{contentKey(1), contentKey(2), contentKey(3)}
	onlyA := contentKey(4)
	onlyB := contentKey(5)

	var fromA, fromB []Entry
	for i, key := range shared {
		fromA = append(fromA, Entry{Key: key, Archive: archiveA, Offset: uint64(i * 10), Length: 10})
		fromB = append(fromB, Entry{Key: key, Archive: archiveB, Offset: uint64(i * 20), Length: 20})
	}
	fromA = append(fromA, Entry{Key: onlyA, Archive: archiveA, Offset: 500, Length: 5})
	fromB = append(fromB, Entry{Key: onlyB, Archive: archiveB, Offset: 900, Length: 9})

	builder := NewBuilder()
	builder.Add(archiveA, fromA)
	builder.Add(archiveB, fromB)
	index := builder.Build()

	for i, key := range shared {
		entry, ok := index.Lookup(key)
		if !ok {
			t.Fatalf("Lookup(%s) not found", key)
		}
		if entry.Archive != archiveB || entry.Offset != uint64(i*20) || entry.Length != 20 {
			t.Errorf("Lookup(%s) = %+v, want the entry from archive B", key, entry)
		}
	}

	if entry, ok := index.Lookup(onlyA); !ok || entry.Archive != archiveA {
		t.Errorf("Lookup(onlyA) = %+v, %v", entry, ok)
	}
	if entry, ok := index.Lookup(onlyB); !ok || entry.Archive != archiveB {
		t.Errorf("Lookup(onlyB) = %+v, %v", entry, ok)
	}
	if index.Len() != 5 {
		t.Errorf("Len = %d, want 5", index.Len())
	}

	archives := index.Archives()
	if len(archives) != 2 || archives[0] != archiveA || archives[1] != archiveB {
		t.Errorf("Archives = %v, want [A B]", archives)
	}
}

func TestLookupMissingKey(t *testing.T) {
	builder := NewBuilder()
	builder.Add(tact.ArchiveKey{1}, []Entry{{Key: contentKey(1), Length: 1}})
	index := builder.Build()

	entry, ok := index.Lookup(contentKey(9))
	if ok {
		t.Errorf("Lookup of a missing key returned %+v", entry)
	}
	if entry != (Entry{}) {
		t.Errorf("missing lookup returned non-zero entry %+v", entry)
	}
}

func TestEncodeRejectsWideOffsets(t *testing.T) {
	if _, err := Encode([]Entry{{Key: contentKey(1), Offset: 1 << 32}}); err == nil {
		t.Error("Encode accepted a 33-bit offset")
	}
}
