// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tact

import "strings"

// Blob categories beneath a CDN path.
const (
	CategoryConfig = "config"
	CategoryData   = "data"
	CategoryPatch  = "patch"
)

// IndexSuffix is appended to an archive's data path to address its
// archive index file.
const IndexSuffix = ".index"

// Path returns the sharded CDN location of a blob:
// <cdnPath>/<category>/<hash[0:2]>/<hash[2:4]>/<hash>. Hashes shorter
// than four characters are not valid CDN hashes and are placed
// unsharded.
func Path(cdnPath, category, hash string) string {
	var builder strings.Builder
	builder.Grow(len(cdnPath) + len(category) + len(hash) + 8)
	builder.WriteString(strings.Trim(cdnPath, "/"))
	builder.WriteByte('/')
	builder.WriteString(category)
	builder.WriteByte('/')
	if len(hash) >= 4 {
		builder.WriteString(hash[0:2])
		builder.WriteByte('/')
		builder.WriteString(hash[2:4])
		builder.WriteByte('/')
	}
	builder.WriteString(hash)
	return builder.String()
}

// ArchivePath returns the CDN location of an archive blob.
func ArchivePath(cdnPath string, archive ArchiveKey) string {
	return Path(cdnPath, CategoryData, archive.String())
}

// ArchiveIndexPath returns the CDN location of an archive's index file.
func ArchiveIndexPath(cdnPath string, archive ArchiveKey) string {
	return ArchivePath(cdnPath, archive) + IndexSuffix
}
