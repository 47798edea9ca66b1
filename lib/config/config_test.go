// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.PatchServer != "http://us.patch.battle.net:1119" {
		t.Errorf("expected the public US patch server, got %s", cfg.PatchServer)
	}
	if cfg.Product != "wow_classic" || cfg.Region != "us" {
		t.Errorf("expected wow_classic/us, got %s/%s", cfg.Product, cfg.Region)
	}
	if cfg.Serve.Port != 8081 {
		t.Errorf("expected port=8081, got %d", cfg.Serve.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad_WithoutEnvironmentUsesDefaults(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Product != "wow_classic" {
		t.Errorf("expected default product, got %s", cfg.Product)
	}
}

func TestLoad_WithEnvironment(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "polymorph.yaml")
	configContent := `
product: wow
region: eu
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvironmentVariable, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Product != "wow" || cfg.Region != "eu" {
		t.Errorf("expected wow/eu, got %s/%s", cfg.Product, cfg.Region)
	}
	// Fields absent from the file keep their defaults.
	if cfg.PatchServer != "http://us.patch.battle.net:1119" {
		t.Errorf("expected default patch server, got %s", cfg.PatchServer)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "polymorph.yaml")
	configContent := `
patch_server: http://eu.patch.battle.net:1119
paths:
  cache: ${POLYMORPH_TEST_ROOT:-/srv}/cache
fetch:
  concurrency: 2
  range_requests: true
  strict_root: true
  timeout: 30s
serve:
  host: 127.0.0.1
  port: 9000
  write_timeout: 2m
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Cache != "/srv/cache" {
		t.Errorf("expected cache=/srv/cache, got %s", cfg.Paths.Cache)
	}
	if cfg.Fetch.Concurrency != 2 || !cfg.Fetch.RangeRequests || !cfg.Fetch.StrictRoot {
		t.Errorf("fetch config = %+v", cfg.Fetch)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("expected timeout=30s, got %v", cfg.RequestTimeout())
	}
	if cfg.ListenAddress() != "127.0.0.1:9000" {
		t.Errorf("expected listen address 127.0.0.1:9000, got %s", cfg.ListenAddress())
	}
	if cfg.WriteTimeout() != 2*time.Minute {
		t.Errorf("expected write timeout=2m, got %v", cfg.WriteTimeout())
	}
	if Default().WriteTimeout() != 0 {
		t.Errorf("expected no default write timeout, got %v", Default().WriteTimeout())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestLoadFile_BadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "polymorph.yaml")
	if err := os.WriteFile(configPath, []byte("fetch: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("POLYMORPH_TEST_DIR", "/from/env")

	tests := []struct {
		input string
		want  string
	}{
		{"${HOME}/cache", "/home/test/cache"},
		{"${POLYMORPH_TEST_DIR}/x", "/from/env/x"},
		{"${POLYMORPH_TEST_UNSET:-/fallback}", "/fallback"},
		{"/no/variables", "/no/variables"},
	}
	vars := map[string]string{"HOME": "/home/test"}
	for _, tt := range tests {
		if got := expandVars(tt.input, vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		PatchServer: "not a url",
		Fetch:       FetchConfig{Concurrency: 0, Timeout: "soon"},
		Serve:       ServeConfig{Port: 70000, ShutdownTimeout: "10s", WriteTimeout: "later"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, fragment := range []string{
		"patch_server", "product is required", "region is required",
		"paths.cache is required", "fetch.concurrency", "fetch.timeout", "serve.port", "serve.write_timeout",
	} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error does not mention %q: %v", fragment, err)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.Cache = filepath.Join(t.TempDir(), "nested", "cache")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.Cache); err != nil || !info.IsDir() {
		t.Errorf("cache directory not created: %v", err)
	}
}
