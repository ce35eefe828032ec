package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	// Matrix credentials are empty by default, so a validating default
	// config needs the transport disabled.
	cfg.Matrix.Disabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.MuteTime != def.MuteTime || cfg.API.Port != def.API.Port {
		t.Errorf("expected defaults, got mute=%d port=%d", cfg.MuteTime, cfg.API.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaybot.yml")
	data := []byte(`
mute_time: 9
matrix:
  bot_user: "@bot:matrix.org"
api:
  port: 6010
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MuteTime != 9 {
		t.Errorf("mute_time = %d, want 9", cfg.MuteTime)
	}
	if cfg.Matrix.BotUser != "@bot:matrix.org" {
		t.Errorf("matrix.bot_user = %q", cfg.Matrix.BotUser)
	}
	if cfg.API.Port != 6010 {
		t.Errorf("api.port = %d, want 6010", cfg.API.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.ErrorInterval != DefaultConfig().ErrorInterval {
		t.Errorf("error_interval = %d, want default", cfg.ErrorInterval)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RELAYBOT_MUTE_TIME", "42")
	t.Setenv("RELAYBOT_MATRIX__BOT_USER", "@env-bot:matrix.org")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MuteTime != 42 {
		t.Errorf("mute_time = %d, want 42", cfg.MuteTime)
	}
	if cfg.Matrix.BotUser != "@env-bot:matrix.org" {
		t.Errorf("matrix.bot_user = %q", cfg.Matrix.BotUser)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaybot.yml")
	cfg := DefaultConfig()
	cfg.MuteTime = 7
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MuteTime != 7 {
		t.Errorf("mute_time after round trip = %d, want 7", loaded.MuteTime)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Matrix.BotUser = "@bot:matrix.org"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"negative mute", func(c *Config) { c.MuteTime = -1 }, true},
		{"zero error interval", func(c *Config) { c.ErrorInterval = 0 }, true},
		{"missing data path", func(c *Config) { c.DataPath = "" }, true},
		{"bad checkpoint", func(c *Config) { c.Checkpoint = "memory" }, true},
		{"port out of range", func(c *Config) { c.API.Port = 70000 }, true},
		{"bot user without server", func(c *Config) { c.Matrix.BotUser = "bot" }, true},
		{"no bot user but disabled", func(c *Config) { c.Matrix.BotUser = ""; c.Matrix.Disabled = true }, false},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
