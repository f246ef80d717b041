package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using its `env` and
// `envDefault` struct tags. Every field tagged `env` without a default is
// optional; use `,required` on the tag for mandatory keys.
func Load(cfg any) error {
	return LoadWithPrefix(cfg, "")
}

// LoadWithPrefix behaves like Load but prepends prefix to every key, which
// lets tests and sidecar processes run with an isolated environment.
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
