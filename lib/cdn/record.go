// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package cdn

import (
	"errors"
	"fmt"
	"time"

	"github.com/polymorph-tact/polymorph/lib/blobcache"
	"github.com/polymorph-tact/polymorph/lib/codec"
	"github.com/polymorph-tact/polymorph/lib/tact"
)

// recordName is the cache entry holding the last resolved build.
const recordName = "build.cbor"

// BuildRecord is everything initialization learned from the patch
// server. With the blobs it names already cached, it is enough to
// rebuild the indices without the network.
type BuildRecord struct {
	Product      string `cbor:"product"`
	Region       string `cbor:"region"`
	BuildName    string `cbor:"build_name,omitempty"`
	VersionsName string `cbor:"versions_name,omitempty"`
	BuildID      uint32 `cbor:"build_id,omitempty"`

	BuildConfig tact.ContentKey `cbor:"build_config"`
	CDNConfig   tact.ContentKey `cbor:"cdn_config"`

	// Root is the root file's content key; RootBlob is the key its
	// encoded blob is stored under on the CDN.
	Root     tact.ContentKey `cbor:"root"`
	RootBlob tact.ContentKey `cbor:"root_blob"`

	// CDNPath is the product prefix on every host; Hosts are tried in
	// order.
	CDNPath string   `cbor:"cdn_path"`
	Hosts   []string `cbor:"hosts"`

	// Archives are in CDN configuration order.
	Archives []tact.ArchiveKey `cbor:"archives"`

	ResolvedAt time.Time `cbor:"resolved_at"`
}

func saveRecord(cache *blobcache.Cache, record *BuildRecord) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding build record: %w", err)
	}
	return cache.Put(recordName, data)
}

// LoadRecord reads the build record from a cache directory.
// tact.ErrNotFound means no build was ever resolved there.
func LoadRecord(cache *blobcache.Cache) (*BuildRecord, error) {
	data, err := cache.Get(recordName)
	if err != nil {
		if errors.Is(err, tact.ErrNotFound) {
			return nil, fmt.Errorf("%w: no build record in %s (run init while online first)", tact.ErrNotFound, cache.Dir())
		}
		return nil, err
	}
	var record BuildRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: decoding build record: %v", tact.ErrMalformed, err)
	}
	return &record, nil
}
