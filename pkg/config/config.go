// Package config holds client configuration for the cypherhttp CLI and
// for programs that prefer file-based setup over wiring options in code.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes how to reach a graph database.
type Config struct {
	// URL is the server's base HTTP endpoint.
	URL string `yaml:"url"`
	// Username for basic authentication. Empty disables auth.
	Username string `yaml:"username"`
	// Password for basic authentication.
	Password string `yaml:"password"`
	// Database substituted into templated transaction endpoints.
	Database string `yaml:"database"`
	// TimeoutSeconds bounds each HTTP round trip. 0 means no timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Default returns the configuration for a local server with
// authentication disabled.
func Default() *Config {
	return &Config{
		URL:            "http://localhost:7474",
		Database:       "neo4j",
		TimeoutSeconds: 30,
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file
// keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
