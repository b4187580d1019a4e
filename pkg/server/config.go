package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SpotifyConfig holds the content-provider application credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Config holds server configuration.
type Config struct {
	Addr        string `yaml:"addr"`         // HTTP bind address (e.g. ":9700")
	WSPath      string `yaml:"ws_path"`      // websocket endpoint path
	DBPath      string `yaml:"db_path"`      // SQLite database path
	MetricsAddr string `yaml:"metrics_addr"` // HTTP bind address for /metrics (empty = disabled)
	LogLevel    string `yaml:"log_level"`    // debug, info, warn, error
	LogFormat   string `yaml:"log_format"`   // text or json

	// BroadcastUnknownActions keeps the historical fallback of echoing an
	// unrecognized action to every connected session. When false, the echo
	// goes only to the requester.
	BroadcastUnknownActions bool `yaml:"broadcast_unknown_actions"`

	Spotify SpotifyConfig `yaml:"spotify"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:                    ":9700",
		WSPath:                  "/api",
		DBPath:                  "spothoot.db",
		MetricsAddr:             ":9702",
		LogLevel:                "info",
		LogFormat:               "text",
		BroadcastUnknownActions: true,
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config as YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
