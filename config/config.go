// Package config provides typed configuration for the provisioning backend:
// YAML file loading with validation, and a guarded cell for the one piece of
// runtime-mutable state, the remote engine endpoint.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devjn1998/projetoEvolutionApiChatWoot/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Database  DatabaseConfig  `yaml:"database"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// ServerConfig configures the REST and metrics listeners
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	MetricsAddr string   `yaml:"metrics_addr"` // empty disables the metrics listener
	CORSOrigins []string `yaml:"cors_origins"`
	APIKey      string   `yaml:"api_key"` // frontend boundary key; empty disables the check
}

// EngineConfig configures access to the remote Workflow Engine
type EngineConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RatePerSecond bounds outbound calls to the engine; 0 means unlimited
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// DatabaseConfig configures the local mirror database
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MessagingConfig carries default endpoints for the messaging platform and
// channel gateway, used when a provisioning request omits credentials.
type MessagingConfig struct {
	PlatformURL string `yaml:"platform_url"`
	GatewayURL  string `yaml:"gateway_url"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
			CORSOrigins: []string{"*"},
		},
		Engine: EngineConfig{
			BaseURL:        "http://localhost:5678",
			RequestTimeout: 30 * time.Second,
			RatePerSecond:  10,
		},
		Database: DatabaseConfig{
			Path: "agents.db",
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"server.addr is required")
	}
	if c.Engine.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"engine.base_url is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("engine.base_url must be an http(s) URL, got %q", c.Engine.BaseURL))
	}
	if c.Engine.RequestTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"engine.request_timeout cannot be negative")
	}
	if c.Engine.RatePerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"engine.rate_per_second cannot be negative")
	}
	if c.Database.Path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"database.path is required")
	}
	return nil
}

// Load reads configuration from a YAML file, applying defaults for absent
// fields. A missing file yields the defaults rather than an error so the
// process can start from flags/env alone.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.WrapFatal(err, "config", "Load", "read file")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapFatal(err, "config", "Load", "parse YAML")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
