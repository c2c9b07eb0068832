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
	envPrefix  = "QUERYAI_"
	envFileVar = "QUERYAI_CONFIG"
)

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"seed_documents":       true,
	"cors_allowed_origins": true,
}

// credentialVars maps well-known unprefixed variables to config keys.
var credentialVars = map[string]string{
	"GEMINI_API_KEY":     "gemini_api_key",
	"LANGSMITH_API_KEY":  "langsmith_api_key",
	"LANGSMITH_PROJECT":  "langsmith_project",
	"LANGSMITH_ENDPOINT": "langsmith_endpoint",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if QUERYAI_CONFIG is set
//  3. env (prefix QUERYAI_)
//  4. GOOGLE_API_KEY, then GEMINI_API_KEY and the LANGSMITH_* variables
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envFileVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// QUERYAI_QUEUE_SIZE -> queue_size (flat keys, underscores preserved)
	prefixed := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		if key == envFileVar {
			return "", nil
		}
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	google := env.Provider("GOOGLE_API_KEY", ".", func(s string) string {
		if s != "GOOGLE_API_KEY" {
			return ""
		}
		return "gemini_api_key"
	})
	if err := k.Load(google, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	credentials := env.Provider("", ".", func(s string) string {
		return credentialVars[s]
	})
	if err := k.Load(credentials, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
