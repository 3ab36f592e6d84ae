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

const (
	envPrefix  = "AXIESALES_"
	envFileVar = envPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. YAML file named by AXIESALES_CONFIG
//  3. env (prefix AXIESALES_)
func Load(ctx context.Context) (*Config, error) {
	cfg := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// AXIESALES_QUEUE_SIZE -> queue_size. Keys are flat, so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envFileVar {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
