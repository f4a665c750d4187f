package config

import (
	"fmt"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOLORES_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Load builds the configuration from defaults, then the optional config
// file at path (json or yaml by extension), then environment variables.
// The first underscore after the prefix separates the section from the
// key: DOLORES_SERVER_PORT=8080 maps to server.port and
// DOLORES_MEMORY_EVICTION_THRESHOLD=0.2 to memory.eviction_threshold.
func Load(path string) (*Config, error) {
	k := koanf.New(Delimiter)

	defaults := Default()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"server.host":               defaults.Server.Host,
		"server.port":               defaults.Server.Port,
		"server.audio_dir":          defaults.Server.AudioDir,
		"server.upload_dir":         defaults.Server.UploadDir,
		"model.name":                defaults.Model.Name,
		"model.max_tokens":          defaults.Model.MaxTokens,
		"memory.forgetting_enabled": defaults.Memory.ForgettingEnabled,
		"memory.eviction_threshold": defaults.Memory.EvictionThreshold,
		"memory.sweep_interval":     defaults.Memory.SweepInterval,
		"embedder.backend":          defaults.Embedder.Backend,
		"embedder.cache_entries":    defaults.Embedder.CacheEntries,
	}, Delimiter), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		// Only the first underscore is the section separator; the rest
		// belong to the key (audio_dir, eviction_threshold, ...).
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", Delimiter, 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := filepath.Ext(path); ext {
	case ".json":
		return kjson.Parser(), nil
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}
