// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Polymorph packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so individual tests
// do not need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation.
//
// [Key] builds deterministic content and archive keys from a seed.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
