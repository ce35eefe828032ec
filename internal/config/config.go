// Package config loads the relaybot configuration from a YAML file with
// RELAYBOT_* environment variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (RELAYBOT_*). Nested keys use '_' pairs,
// e.g. RELAYBOT_MATRIX_BOT_USER -> matrix.bot_user.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: RELAYBOT_MUTE_TIME -> mute_time,
	// RELAYBOT_MATRIX__BOT_USER -> matrix.bot_user. A double underscore
	// separates nesting levels so that key names may themselves contain
	// single underscores.
	if err := k.Load(env.Provider("RELAYBOT_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "RELAYBOT_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validCheckpoints is the set of recognized checkpoint backends.
var validCheckpoints = map[CheckpointBackend]bool{
	CheckpointFile:   true,
	CheckpointSQLite: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.MuteTime < 0 {
		return fmt.Errorf("mute_time must be non-negative")
	}
	if c.ErrorInterval <= 0 {
		return fmt.Errorf("error_interval must be positive")
	}
	if c.DataPath == "" {
		return fmt.Errorf("data_path is required")
	}
	if !validCheckpoints[c.Checkpoint] {
		return fmt.Errorf("invalid checkpoint %q: must be one of file, sqlite", c.Checkpoint)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if !c.Matrix.Disabled {
		if c.Matrix.BotUser == "" {
			return fmt.Errorf("matrix.bot_user is required unless matrix is disabled")
		}
		if !strings.Contains(c.Matrix.BotUser, ":") {
			return fmt.Errorf("matrix.bot_user %q does not specify the matrix server, e.g. '@your-own-bot-account:matrix.org'", c.Matrix.BotUser)
		}
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	return nil
}
