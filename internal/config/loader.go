package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if ENCORE_CONFIG is set
//  3. env (prefix ENCORE_)
func Load(_ context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("ENCORE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: ENCORE_ADDR, ENCORE_STORE_MODE, ...
	// Map env keys like ENCORE_STORE_MODE -> store_mode (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("ENCORE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "encore_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StoreMode {
	case "memory", "sqlite", "remote":
	default:
		return fmt.Errorf("%w: store_mode must be memory, sqlite or remote, got %q",
			ErrInvalidConfig, c.StoreMode)
	}
	if c.StoreMode == "sqlite" && c.StorePath == "" {
		return fmt.Errorf("%w: store_path must not be empty in sqlite mode", ErrInvalidConfig)
	}
	if c.StoreMode == "remote" && c.StoreRemoteURL == "" {
		return fmt.Errorf("%w: store_remote_url must not be empty in remote mode", ErrInvalidConfig)
	}
	if !c.AuthDisabled && c.AuthSecret == "" {
		return fmt.Errorf("%w: auth_secret must be set unless auth_disabled", ErrInvalidConfig)
	}
	return nil
}
