// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tactconfig

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Config is a parsed "key = value" blob. Values are split on
// whitespace; most keys carry one or two hashes, archive lists carry
// thousands.
type Config map[string][]string

// ParseConfig parses a build or CDN configuration blob. Lines starting
// with '#' and blank lines are ignored.
func ParseConfig(data []byte) (Config, error) {
	config := make(Config)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// Archive lists are single lines of several hundred KiB.
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("%w: config line %d has no '='", tact.ErrMalformed, lineNumber)
		}
		config[strings.TrimSpace(name)] = strings.Fields(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading config: %v", tact.ErrMalformed, err)
	}
	return config, nil
}

// First returns the first value of key, or "".
func (c Config) First(key string) string {
	values := c[key]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// BuildConfig is the subset of a build configuration this pipeline
// reads.
type BuildConfig struct {
	// Root is the content key of the root file.
	Root tact.ContentKey

	// RootBlob is the key the root blob is published under on the CDN.
	// Configs that list a second hash on the root line store the blob
	// under that hash; otherwise it equals Root.
	RootBlob tact.ContentKey

	BuildName string
	Values    Config
}

// ParseBuildConfig parses a build configuration. The root key is
// required.
func ParseBuildConfig(data []byte) (*BuildConfig, error) {
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing build config: %w", err)
	}
	rootText := config.First("root")
	if rootText == "" {
		return nil, fmt.Errorf("%w: build config has no root entry", tact.ErrMalformed)
	}
	root, err := tact.ParseContentKey(rootText)
	if err != nil {
		return nil, fmt.Errorf("build config root: %w", err)
	}
	rootBlob := root
	if values := config["root"]; len(values) > 1 {
		if rootBlob, err = tact.ParseContentKey(values[1]); err != nil {
			return nil, fmt.Errorf("build config root blob: %w", err)
		}
	}
	return &BuildConfig{
		Root:      root,
		RootBlob:  rootBlob,
		BuildName: config.First("build-name"),
		Values:    config,
	}, nil
}

// CDNConfig is the subset of a CDN configuration this pipeline reads.
type CDNConfig struct {
	// Archives are listed in publication order; later archives'
	// indices supersede earlier ones on key collisions.
	Archives []tact.ArchiveKey
	Values   Config
}

// ParseCDNConfig parses a CDN configuration. The archives entry is
// required.
func ParseCDNConfig(data []byte) (*CDNConfig, error) {
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing cdn config: %w", err)
	}
	if _, ok := config["archives"]; !ok {
		return nil, fmt.Errorf("%w: cdn config has no archives entry", tact.ErrMalformed)
	}

	archives, err := parseArchiveKeys(config["archives"])
	if err != nil {
		return nil, fmt.Errorf("cdn config archives: %w", err)
	}
	return &CDNConfig{
		Archives: archives,
		Values:   config,
	}, nil
}

func parseArchiveKeys(values []string) ([]tact.ArchiveKey, error) {
	keys := make([]tact.ArchiveKey, 0, len(values))
	for _, value := range values {
		key, err := tact.ParseArchiveKey(value)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
