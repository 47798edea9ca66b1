// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package service runs long-lived network listeners for polymorph
// commands. [HTTPServer] binds a TCP address, signals readiness, and
// drains in-flight requests when its context is cancelled.
package service
