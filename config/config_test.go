package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayplan/plancache/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://api.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	// Defaults applied
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 4, cfg.Queue.DrainWorkers)
	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout.Std())
	assert.Equal(t, Duration(24*time.Hour), cfg.Cache.Collections["goals"])
	assert.Equal(t, Duration(5*time.Minute), cfg.Cache.Collections["habitLogs"])
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://api.example.com
  request_timeout: 3s
cache:
  max_entries: 50
  collections:
    goals: 1h
    notes: 10m
queue:
  max_attempts: 2
  drain_workers: 1
  in_memory: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Remote.RequestTimeout.Std())
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, Duration(time.Hour), cfg.Cache.Collections["goals"])
	assert.Equal(t, Duration(10*time.Minute), cfg.Cache.Collections["notes"])
	// An explicit table replaces the default one entirely
	_, exists := cfg.Cache.Collections["habits"]
	assert.False(t, exists)
	assert.Equal(t, 2, cfg.Queue.MaxAttempts)
	assert.True(t, cfg.Queue.InMemory)
}

func TestLoad_MissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
cache:
  max_entries: 10
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: https://api.example.com
  request_timeout: not-a-duration
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate_BadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max entries", func(c *Config) { c.Cache.MaxEntries = -1 }},
		{"zero collection ttl", func(c *Config) { c.Cache.Collections["goals"] = 0 }},
		{"negative max attempts", func(c *Config) { c.Queue.MaxAttempts = -1 }},
		{"zero drain workers", func(c *Config) { c.Queue.DrainWorkers = -2 }},
		{"max delay below initial", func(c *Config) {
			c.Queue.Retry.InitialDelay = Duration(time.Second)
			c.Queue.Retry.MaxDelay = Duration(time.Millisecond)
		}},
		{"zero failure threshold", func(c *Config) { c.Connectivity.FailureThreshold = -1 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Remote.BaseURL = "https://api.example.com"
			test.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
