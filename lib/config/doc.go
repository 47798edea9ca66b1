// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Polymorph.
//
// Configuration is loaded from a single YAML file named by:
//   - the --config flag passed to the command, or
//   - the POLYMORPH_CONFIG environment variable.
//
// Without either, [Default] applies: the public US patch server, the
// wow_classic product, and a cache under ${HOME}/.cache/polymorph.
// Values in the file replace defaults field by field; command-line
// flags such as --cache-path replace file values. Paths may use
// ${VAR} and ${VAR:-default} expansion.
//
// [Config.Validate] reports every problem at once with errors.Join so
// a misconfigured file is fixed in one pass.
package config
