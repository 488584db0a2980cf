// Package config loads service configuration from a YAML file with MUNIN_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// DataDir is where the persistent store lives.
	DataDir string `yaml:"data_dir"`

	// EncryptionPassphrase enables encryption-at-rest when non-empty.
	EncryptionPassphrase string `yaml:"encryption_passphrase"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Decay     DecayConfig     `yaml:"decay"`
	Bundle    BundleConfig    `yaml:"bundle"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" or "openai".
	Provider string `yaml:"provider"`

	APIURL     string        `yaml:"api_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DecayConfig controls the scheduled decay worker.
type DecayConfig struct {
	// Enabled starts the cron scheduler when true.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression; defaults to daily.
	Schedule string `yaml:"schedule"`
}

// BundleConfig holds bundling defaults.
type BundleConfig struct {
	// MaxTokens is the default token budget when the caller passes none.
	MaxTokens int `yaml:"max_tokens"`
}

// Default returns the baseline configuration: local Ollama, daily decay,
// 4000-token bundles.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			APIURL:     "http://localhost:11434",
			Model:      "all-minilm",
			Dimensions: 384,
			Timeout:    30 * time.Second,
		},
		Decay: DecayConfig{
			Enabled:  true,
			Schedule: "@daily",
		},
		Bundle: BundleConfig{
			MaxTokens: 4000,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays MUNIN_* environment variables.
func (c *Config) applyEnv() {
	setStr(&c.DataDir, "MUNIN_DATA_DIR")
	setStr(&c.EncryptionPassphrase, "MUNIN_ENCRYPTION_PASSPHRASE")

	setStr(&c.Embedding.Provider, "MUNIN_EMBED_PROVIDER")
	setStr(&c.Embedding.APIURL, "MUNIN_EMBED_API_URL")
	setStr(&c.Embedding.APIKey, "MUNIN_EMBED_API_KEY")
	setStr(&c.Embedding.Model, "MUNIN_EMBED_MODEL")
	setInt(&c.Embedding.Dimensions, "MUNIN_EMBED_DIMENSIONS")

	setBool(&c.Decay.Enabled, "MUNIN_DECAY_ENABLED")
	setStr(&c.Decay.Schedule, "MUNIN_DECAY_SCHEDULE")

	setInt(&c.Bundle.MaxTokens, "MUNIN_BUNDLE_MAX_TOKENS")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
