// Package config loads the companion daemon configuration from
// defaults, an optional config file and DOLORES_-prefixed environment
// variables, in increasing priority.
package config

import (
	"fmt"
	"time"
)

// Config is the daemon configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Memory   MemoryConfig   `koanf:"memory"`
	Embedder EmbedderConfig `koanf:"embedder"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `koanf:"host"`

	// Port is the HTTP port.
	Port int `koanf:"port"`

	// AudioDir is where synthesized replies are written and served from.
	AudioDir string `koanf:"audio_dir"`

	// UploadDir is where incoming audio and image uploads are staged.
	UploadDir string `koanf:"upload_dir"`
}

// ModelConfig holds the Claude model settings. The API key comes from
// the ANTHROPIC_API_KEY environment variable, never from a file.
type ModelConfig struct {
	Name      string `koanf:"name"`
	MaxTokens int64  `koanf:"max_tokens"`
}

// MemoryConfig holds the memory bank settings.
type MemoryConfig struct {
	// ForgettingEnabled toggles the Ebbinghaus decay model.
	ForgettingEnabled bool `koanf:"forgetting_enabled"`

	// EvictionThreshold is the retention score below which the sweep
	// removes an item.
	EvictionThreshold float64 `koanf:"eviction_threshold"`

	// SweepInterval is how often the maintenance sweep runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	// Backend is "mock" or "onnx".
	Backend string `koanf:"backend"`

	// CacheEntries caps the text-embedding cache.
	CacheEntries int64 `koanf:"cache_entries"`

	// ONNX model locations, used when Backend is "onnx".
	TextModelPath  string `koanf:"text_model_path"`
	TokenizerPath  string `koanf:"tokenizer_path"`
	ImageModelPath string `koanf:"image_model_path"`
	LibraryPath    string `koanf:"library_path"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      5000,
			AudioDir:  "model_output",
			UploadDir: "uploads",
		},
		Model: ModelConfig{
			Name:      "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		Memory: MemoryConfig{
			ForgettingEnabled: true,
			EvictionThreshold: 0.1,
			SweepInterval:     time.Hour,
		},
		Embedder: EmbedderConfig{
			Backend:      "mock",
			CacheEntries: 4096,
		},
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name must not be empty")
	}
	if c.Memory.EvictionThreshold < 0 || c.Memory.EvictionThreshold >= 1 {
		return fmt.Errorf("memory.eviction_threshold %f must be in [0, 1)", c.Memory.EvictionThreshold)
	}
	switch c.Embedder.Backend {
	case "mock", "onnx":
	default:
		return fmt.Errorf("embedder.backend %q must be mock or onnx", c.Embedder.Backend)
	}
	if c.Embedder.Backend == "onnx" && c.Embedder.TextModelPath == "" {
		return fmt.Errorf("embedder.text_model_path required for onnx backend")
	}
	return nil
}
