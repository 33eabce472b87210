package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing server addr", func(c *Config) { c.Server.Addr = "" }},
		{"missing engine url", func(c *Config) { c.Engine.BaseURL = "" }},
		{"non-http engine url", func(c *Config) { c.Engine.BaseURL = "localhost:5678" }},
		{"negative timeout", func(c *Config) { c.Engine.RequestTimeout = -time.Second }},
		{"negative rate", func(c *Config) { c.Engine.RatePerSecond = -1 }},
		{"missing database path", func(c *Config) { c.Database.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":9000"
engine:
  base_url: "https://n8n.internal:5678/"
  api_key: "secret"
  request_timeout: 10s
database:
  path: "/tmp/mirror.db"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "https://n8n.internal:5678/", cfg.Engine.BaseURL)
	assert.Equal(t, "secret", cfg.Engine.APIKey)
	assert.Equal(t, 10*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, "/tmp/mirror.db", cfg.Database.Path)
	// Untouched fields keep defaults
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestGuardRotate(t *testing.T) {
	g := NewGuard(Endpoint{BaseURL: "http://old:5678/", APIKey: "k1"})
	assert.Equal(t, "http://old:5678", g.Current().BaseURL)

	prev := g.Rotate(Endpoint{BaseURL: "http://new:5678", APIKey: "k2"})
	assert.Equal(t, "http://old:5678", prev.BaseURL)
	assert.Equal(t, "k2", g.Current().APIKey)
}

func TestGuardConcurrentReaders(t *testing.T) {
	g := NewGuard(Endpoint{BaseURL: "http://a:5678", APIKey: "k"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ep := g.Current()
				// Base URL and key always swap together
				switch ep.BaseURL {
				case "http://a:5678":
					assert.Equal(t, "k", ep.APIKey)
				case "http://b:5678":
					assert.Equal(t, "k2", ep.APIKey)
				default:
					t.Error("unexpected base URL", ep.BaseURL)
				}
			}
		}()
	}
	g.Rotate(Endpoint{BaseURL: "http://b:5678", APIKey: "k2"})
	wg.Wait()
}
