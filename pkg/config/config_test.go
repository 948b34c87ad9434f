package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "pipeline-cache", cfg.Cache.Name)
	assert.Equal(t, "sqlite", cfg.Cache.Type)
	assert.Equal(t, "local", cfg.Shaders.StorageType)
	assert.Equal(t, "background", cfg.Batching.StartupMode)
	assert.Equal(t, 50, cfg.Batching.FastBatchSize)
	assert.Equal(t, 16, cfg.Batching.FastBatchTime)
	assert.Equal(t, 1, cfg.Batching.BackgroundSize)
	assert.Equal(t, 100, cfg.Batching.TickInterval)
	assert.Equal(t, 8, cfg.Batching.ReadPoolSize)
	assert.False(t, cfg.Batching.MaskEnabled)
	assert.Equal(t, 512, cfg.AutoSave.Threshold)
	assert.Equal(t, 30, cfg.AutoSave.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
cache:
  name: my-game
  type: mysql
  host: db.internal
  port: 3306
batching:
  startup_mode: fast
  fast_batch_size: 100
  mask_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "my-game", cfg.Cache.Name)
	assert.Equal(t, "mysql", cfg.Cache.Type)
	assert.Equal(t, "db.internal", cfg.Cache.Host)
	assert.Equal(t, "fast", cfg.Batching.StartupMode)
	assert.Equal(t, 100, cfg.Batching.FastBatchSize)
	assert.True(t, cfg.Batching.MaskEnabled)
	// Untouched settings keep their defaults.
	assert.Equal(t, 1, cfg.Batching.BackgroundSize)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadStoreType", func(c *Config) { c.Cache.Type = "oracle" }},
		{"BadStorageType", func(c *Config) { c.Shaders.StorageType = "ftp" }},
		{"BadStartupMode", func(c *Config) { c.Batching.StartupMode = "turbo" }},
		{"ZeroBatchSize", func(c *Config) { c.Batching.FastBatchSize = 0 }},
		{"ZeroTickInterval", func(c *Config) { c.Batching.TickInterval = 0 }},
		{"ZeroReadPool", func(c *Config) { c.Batching.ReadPoolSize = 0 }},
		{"NegativeMinBinds", func(c *Config) { c.Batching.MinBindCount = -1 }},
		{"NegativeAutoSave", func(c *Config) { c.AutoSave.Threshold = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
