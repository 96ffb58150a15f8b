// Package config handles loading gateway configuration:
// defaults < config file < environment < CLI flags, the same layering the
// teacher's koanf-based loader uses, generalized from per-provider API keys
// to a single upstream origin.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the gateway. The yaml tags
// mirror the koanf tags so the same struct can be marshaled back out as a
// config.yaml template (see cmd/inferencegate's `config init`).
type Config struct {
	Host string `koanf:"host" yaml:"host"`
	Port int    `koanf:"port" yaml:"port"`

	// Upstream is the full origin (scheme + host[:port]) every request is
	// forwarded to in RECORD_AND_REPLAY mode.
	Upstream string `koanf:"upstream" yaml:"upstream"`

	// APIKey is never persisted to the config file (no koanf/yaml tag
	// writes it back out); OPENAI_API_KEY always wins over any
	// config-file value.
	APIKey string `koanf:"-" yaml:"-"`

	CacheDir string `koanf:"cache_dir" yaml:"cache_dir"`
	Verbose  bool   `koanf:"verbose" yaml:"verbose"`

	TestModel  string `koanf:"test_model" yaml:"test_model"`
	TestPrompt string `koanf:"test_prompt" yaml:"test_prompt"`

	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
}

// Defaults returns the configuration used when no file, environment
// variable, or flag overrides a field.
func Defaults() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8787,
		Upstream:     "https://api.openai.com",
		CacheDir:     "./inferencegate-cache",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		TestModel:    "gpt-4o-mini",
		TestPrompt:   "Say hello in one short sentence.",
	}
}

// Load reads configuration from a YAML file at path (if it exists), layers
// INFERENCEGATE_-prefixed environment variable overrides on top of
// Defaults, and resolves the API key last: OPENAI_API_KEY, if set, always
// wins over anything in the config file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("INFERENCEGATE_", ".", func(s string) string {
		// Keys are flat (cache_dir, read_timeout, ...), so underscores stay.
		return strings.ToLower(strings.TrimPrefix(s, "INFERENCEGATE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.APIKey = os.Getenv("OPENAI_API_KEY")

	return &cfg, nil
}

// Path resolves the config file path the CLI should read and write: an
// explicit --config flag wins, otherwise $INFERENCEGATE_CONFIG, otherwise
// config.yaml in the working directory.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("INFERENCEGATE_CONFIG"); env != "" {
		return env
	}
	return "config.yaml"
}
