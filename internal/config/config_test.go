package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.example.com",
			Timeout: 30 * time.Second,
		},
		Session: SessionConfig{Store: "file"},
		Relay:   RelayConfig{Port: "8787", Mode: "remote"},
		Stream: StreamConfig{
			Simulation: SimulationConfig{Ceiling: 90},
		},
		App: AppConfig{
			DefaultFormat:    "text",
			SupportedFormats: []string{"json", "text"},
		},
	}
}

func TestLoadConfigFile_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
api:
  baseURL: https://backend.example.com/
  timeout: 10s
session:
  store: memory
relay:
  port: "9000"
  mode: local
app:
  defaultFormat: json
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0600))

	cfg, err := LoadConfigFile(file)
	require.NoError(t, err)

	assert.Equal(t, "https://backend.example.com", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.API.FallbackToBlocking)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.NotEmpty(t, cfg.Session.Path)
	assert.Equal(t, "9000", cfg.Relay.Port)
	assert.Equal(t, "local", cfg.Relay.Mode)
	assert.Equal(t, 90.0, cfg.Stream.Simulation.Ceiling)
	assert.Equal(t, "json", cfg.App.DefaultFormat)
	assert.Equal(t, "gemini-2.0-flash", cfg.Analyzer.Model)
	assert.True(t, cfg.API.CircuitBreaker.Enabled)
}

func TestLoadConfigFile_EnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("relay:\n  port: \"9000\"\n"), 0600))

	t.Setenv("RESUMATCH_RELAY_PORT", "9100")
	t.Setenv("RESUMATCH_RELAY_APIKEYS", " a , b ,")
	t.Setenv("GEMINI_API_KEY", "gemini-from-env")

	cfg, err := LoadConfigFile(file)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Relay.Port)
	assert.Equal(t, []string{"a", "b"}, cfg.Relay.APIKeys)
	assert.Equal(t, "gemini-from-env", cfg.Analyzer.APIKey)
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad base URL", mutate: func(c *Config) { c.API.BaseURL = "ftp://x" }, wantErr: "invalid API base URL"},
		{name: "empty base URL", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "invalid API base URL"},
		{name: "zero timeout", mutate: func(c *Config) { c.API.Timeout = 0 }, wantErr: "API timeout"},
		{name: "negative stream timeout", mutate: func(c *Config) { c.API.StreamTimeout = -time.Second }, wantErr: "stream timeout"},
		{name: "bad session store", mutate: func(c *Config) { c.Session.Store = "cookie" }, wantErr: "invalid session store"},
		{name: "vault store without vault", mutate: func(c *Config) { c.Session.Store = "vault" }, wantErr: "requires vault.enabled"},
		{
			name: "vault store without path",
			mutate: func(c *Config) {
				c.Session.Store = "vault"
				c.Vault.Enabled = true
			},
			wantErr: "requires session.vaultPath",
		},
		{name: "bad relay mode", mutate: func(c *Config) { c.Relay.Mode = "proxy" }, wantErr: "invalid relay mode"},
		{name: "missing relay port", mutate: func(c *Config) { c.Relay.Port = "" }, wantErr: "relay port"},
		{name: "ceiling above 100", mutate: func(c *Config) { c.Stream.Simulation.Ceiling = 120 }, wantErr: "ceiling"},
		{name: "unsupported format", mutate: func(c *Config) { c.App.DefaultFormat = "xml" }, wantErr: "invalid default format"},
		{
			name: "rate limit without rate",
			mutate: func(c *Config) {
				c.API.RateLimit.Enabled = true
				c.API.RateLimit.RequestsPerSecond = 0
			},
			wantErr: "requestsPerSecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"k1", "k2"}, splitAndTrim(" k1,, k2 "))
	assert.Empty(t, splitAndTrim(""))
}
