// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the current time so that timestamps written
// to cache state and request durations in logs are deterministic in
// tests. Production code injects [Real]; tests inject [Fake] and move
// time with [FakeClock.Advance].
package clock
