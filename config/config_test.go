package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zoiudp/Dolores-AI/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "mock", cfg.Embedder.Backend)
	assert.True(t, cfg.Memory.ForgettingEnabled)
	assert.Equal(t, 0.1, cfg.Memory.EvictionThreshold)
	assert.Equal(t, time.Hour, cfg.Memory.SweepInterval)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_JSONFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"port": 8088, "audio_dir": "out"},
		"memory": {"eviction_threshold": 0.2}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "out", cfg.Server.AudioDir)
	assert.Equal(t, 0.2, cfg.Memory.EvictionThreshold)

	// Untouched keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "mock", cfg.Embedder.Backend)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "model:\n  name: claude-test\n  max_tokens: 2048\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude-test", cfg.Model.Name)
	assert.Equal(t, int64(2048), cfg.Model.MaxTokens)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": 8088}}`), 0o644))

	t.Setenv("DOLORES_SERVER_PORT", "9090")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_EnvMultiWordKeys(t *testing.T) {
	t.Setenv("DOLORES_MEMORY_EVICTION_THRESHOLD", "0.5")
	t.Setenv("DOLORES_MEMORY_FORGETTING_ENABLED", "false")
	t.Setenv("DOLORES_SERVER_AUDIO_DIR", "custom_out")
	t.Setenv("DOLORES_MODEL_MAX_TOKENS", "9999")
	t.Setenv("DOLORES_EMBEDDER_CACHE_ENTRIES", "128")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Memory.EvictionThreshold)
	assert.False(t, cfg.Memory.ForgettingEnabled)
	assert.Equal(t, "custom_out", cfg.Server.AudioDir)
	assert.Equal(t, int64(9999), cfg.Model.MaxTokens)
	assert.Equal(t, int64(128), cfg.Embedder.CacheEntries)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"port too low", func(c *config.Config) { c.Server.Port = 0 }},
		{"port too high", func(c *config.Config) { c.Server.Port = 70000 }},
		{"empty model name", func(c *config.Config) { c.Model.Name = "" }},
		{"negative threshold", func(c *config.Config) { c.Memory.EvictionThreshold = -0.5 }},
		{"threshold not below one", func(c *config.Config) { c.Memory.EvictionThreshold = 1.0 }},
		{"unknown backend", func(c *config.Config) { c.Embedder.Backend = "quantum" }},
		{"onnx without model", func(c *config.Config) { c.Embedder.Backend = "onnx" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
