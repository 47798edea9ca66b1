// Copyright 2026 The Polymorph Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "POLYMORPH_CONFIG"

// Config is the master configuration for Polymorph.
type Config struct {
	// PatchServer is the base URL of the patch server that publishes
	// the versions and cdns manifests.
	PatchServer string `yaml:"patch_server"`

	// Product is the product code (e.g. "wow_classic").
	Product string `yaml:"product"`

	// Region selects the manifest rows (e.g. "us", "eu").
	Region string `yaml:"region"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Fetch configures CDN retrieval.
	Fetch FetchConfig `yaml:"fetch"`

	// Serve configures the asset HTTP server.
	Serve ServeConfig `yaml:"serve"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Cache is the content-addressed cache directory. It also holds
	// the build record and the listfile database.
	Cache string `yaml:"cache"`
}

// FetchConfig configures CDN retrieval.
type FetchConfig struct {
	// Concurrency bounds parallel archive and index downloads.
	// Default: 8
	Concurrency int `yaml:"concurrency"`

	// RangeRequests fetches individual files with HTTP Range requests
	// instead of downloading and caching whole archives.
	// Default: false
	RangeRequests bool `yaml:"range_requests"`

	// StrictRoot fails initialization when the root file is truncated
	// instead of using its complete blocks.
	// Default: false
	StrictRoot bool `yaml:"strict_root"`

	// Timeout bounds each HTTP request, as a Go duration string.
	// Default: 5m
	Timeout string `yaml:"timeout"`
}

// ServeConfig configures the asset HTTP server.
type ServeConfig struct {
	// Port is the TCP port to listen on. Default: 8081
	Port int `yaml:"port"`

	// Host is the listen address. Default: "" (all interfaces)
	Host string `yaml:"host"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// WriteTimeout bounds writing one response, as a Go duration
	// string. Empty or "0" disables it. Default: ""
	WriteTimeout string `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given and the
// base that a file is merged onto.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		PatchServer: "http://us.patch.battle.net:1119",
		Product:     "wow_classic",
		Region:      "us",
		Paths: PathsConfig{
			Cache: filepath.Join(homeDir, ".cache", "polymorph"),
		},
		Fetch: FetchConfig{
			Concurrency: 8,
			Timeout:     "5m",
		},
		Serve: ServeConfig{
			Port:            8081,
			ShutdownTimeout: "10s",
		},
	}
}

// Load loads the file named by POLYMORPH_CONFIG, or returns Default
// when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Cache = expandVars(c.Paths.Cache, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.PatchServer == "" {
		errs = append(errs, fmt.Errorf("patch_server is required"))
	} else if parsed, err := url.Parse(c.PatchServer); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("patch_server %q is not an absolute URL", c.PatchServer))
	}
	if c.Product == "" {
		errs = append(errs, fmt.Errorf("product is required"))
	}
	if c.Region == "" {
		errs = append(errs, fmt.Errorf("region is required"))
	}
	if c.Paths.Cache == "" {
		errs = append(errs, fmt.Errorf("paths.cache is required"))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch.concurrency must be at least 1, got %d", c.Fetch.Concurrency))
	}
	if _, err := time.ParseDuration(c.Fetch.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("fetch.timeout: %w", err))
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		errs = append(errs, fmt.Errorf("serve.port %d is out of range", c.Serve.Port))
	}
	if _, err := time.ParseDuration(c.Serve.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("serve.shutdown_timeout: %w", err))
	}
	if c.Serve.WriteTimeout != "" {
		if timeout, err := time.ParseDuration(c.Serve.WriteTimeout); err != nil {
			errs = append(errs, fmt.Errorf("serve.write_timeout: %w", err))
		} else if timeout < 0 {
			errs = append(errs, fmt.Errorf("serve.write_timeout %s is negative", timeout))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// RequestTimeout returns Fetch.Timeout parsed. Call Validate first.
func (c *Config) RequestTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Fetch.Timeout)
	return timeout
}

// ShutdownTimeout returns Serve.ShutdownTimeout parsed. Call Validate
// first.
func (c *Config) ShutdownTimeout() time.Duration {
	timeout, _ := time.ParseDuration(c.Serve.ShutdownTimeout)
	return timeout
}

// WriteTimeout returns Serve.WriteTimeout parsed, or zero when unset.
// Call Validate first.
func (c *Config) WriteTimeout() time.Duration {
	if c.Serve.WriteTimeout == "" {
		return 0
	}
	timeout, _ := time.ParseDuration(c.Serve.WriteTimeout)
	return timeout
}

// ListenAddress returns the host:port the asset server binds.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Serve.Host, c.Serve.Port)
}

// EnsurePaths creates the cache directory if it does not exist.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.Cache, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Cache, err)
	}
	return nil
}
