// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package tact holds the value types and error kinds shared by every
// layer of the CDN resolution pipeline.
//
// Content on the CDN is addressed by 16-byte hashes. A [ContentKey]
// identifies data by its decoded content; an [ArchiveKey] identifies an
// archive blob (a concatenation of many independently addressed
// payloads) and the archive index file that describes it. Both are
// plain comparable arrays, so they work directly as map keys.
//
// Errors produced anywhere in the pipeline wrap one of the sentinel
// kinds declared here ([ErrNotFound], [ErrMalformed], ...). Callers
// classify failures with errors.Is rather than by inspecting strings.
//
// [Path] implements the sharded CDN path convention used for every
// blob category.
package tact
