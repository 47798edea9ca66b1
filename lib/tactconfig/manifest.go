// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package tactconfig

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/polymorph-tact/polymorph/lib/tact"
)

// Version is the versions manifest row for one region.
type Version struct {
	Region       string
	BuildConfig  tact.ContentKey
	CDNConfig    tact.ContentKey
	BuildID      uint32
	VersionsName string
	Seqn         uint64
}

// CDN is the cdns manifest row for one region.
type CDN struct {
	Name string

	// Path is the product's prefix on every CDN host (e.g. "tpr/wow").
	Path string

	// Hosts are bare host names, tried in order.
	Hosts []string

	// Servers are full base URLs, when the manifest provides them.
	// They may carry query parameters such as "?maxhosts=4".
	Servers []string
}

// Endpoints returns the hosts to try in order: every entry of Hosts,
// then the base URL of each server whose host is not already listed.
func (c *CDN) Endpoints() []string {
	endpoints := append([]string(nil), c.Hosts...)
	for _, server := range c.Servers {
		parsed, err := url.Parse(server)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			continue
		}
		if slices.Contains(c.Hosts, parsed.Host) {
			continue
		}
		base := parsed.Scheme + "://" + parsed.Host + strings.TrimRight(parsed.Path, "/")
		if !slices.Contains(endpoints, base) {
			endpoints = append(endpoints, base)
		}
	}
	return endpoints
}

// ParseVersions returns the versions row for region. A missing region
// is tact.ErrNotFound.
func ParseVersions(data []byte, region string) (*Version, error) {
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("parsing versions manifest: %w", err)
	}
	row, ok := table.Find("Region", region)
	if !ok {
		return nil, fmt.Errorf("%w: region %q in versions manifest", tact.ErrNotFound, region)
	}

	version := &Version{
		Region:       region,
		VersionsName: row.Get("VersionsName"),
		Seqn:         table.Seqn,
	}
	if version.BuildConfig, err = tact.ParseContentKey(row.Get("BuildConfig")); err != nil {
		return nil, fmt.Errorf("versions manifest BuildConfig: %w", err)
	}
	if version.CDNConfig, err = tact.ParseContentKey(row.Get("CDNConfig")); err != nil {
		return nil, fmt.Errorf("versions manifest CDNConfig: %w", err)
	}
	if text := row.Get("BuildId"); text != "" {
		buildID, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: versions manifest BuildId %q", tact.ErrMalformed, text)
		}
		version.BuildID = uint32(buildID)
	}
	return version, nil
}

// ParseCDNs returns the cdns row for region. A row with neither hosts
// nor usable servers is malformed: there would be nowhere to fetch from.
func ParseCDNs(data []byte, region string) (*CDN, error) {
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("parsing cdns manifest: %w", err)
	}
	row, ok := table.Find("Name", region)
	if !ok {
		return nil, fmt.Errorf("%w: region %q in cdns manifest", tact.ErrNotFound, region)
	}

	cdn := &CDN{
		Name:    region,
		Path:    strings.Trim(row.Get("Path"), "/"),
		Hosts:   strings.Fields(row.Get("Hosts")),
		Servers: strings.Fields(row.Get("Servers")),
	}
	if cdn.Path == "" {
		return nil, fmt.Errorf("%w: cdns manifest row %q has no path", tact.ErrMalformed, region)
	}
	if len(cdn.Endpoints()) == 0 {
		return nil, fmt.Errorf("%w: cdns manifest row %q has no hosts", tact.ErrMalformed, region)
	}
	return cdn, nil
}
