// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/display-agent/config.yaml",
	"/etc/display-agent/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix is the prefix for environment variable overrides, e.g.
// DISPLAY_SERVER_BASE_URL maps to server.base_url.
const envPrefix = "DISPLAY_"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:           "",
			Timeout:           15 * time.Second,
			RetryAttempts:     3,
			RetryBaseDelay:    1 * time.Second,
			RetryMaxDelay:     30 * time.Second,
			ContentCooldown:   5 * time.Minute,
			HeartbeatCooldown: 1 * time.Minute,
			DedupWindow:       5 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:               "",
			HandshakeTimeout:  10 * time.Second,
			HeartbeatNormal:   30 * time.Second,
			HeartbeatFast:     5 * time.Second,
			ReconnectBase:     1 * time.Second,
			ReconnectMax:      30 * time.Second,
			ReconnectAttempts: 10,
			ReadTimeout:       90 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Cache: CacheConfig{
			Dir:            "/var/lib/display-agent/cache",
			InMemory:       false,
			SweepInterval:  10 * time.Minute,
			ContentTTL:     5 * time.Minute,
			PrayerTimesTTL: 1 * time.Hour,
			EventsTTL:      15 * time.Minute,
			ScheduleTTL:    1 * time.Hour,
		},
		Sync: SyncConfig{
			Interval:          5 * time.Minute,
			QueueCap:          5,
			HeartbeatInterval: 30 * time.Second,
		},
		Commands: CommandsConfig{
			DedupWindow:         60 * time.Second,
			TypeCooldown:        2 * time.Second,
			ResponseLogCap:      50,
			DisruptiveCountdown: 10 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9620",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, highest priority last. The result is validated
// before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: built-in defaults.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: optional YAML config file.
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (DISPLAY_SERVER_BASE_URL → server.base_url).
	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
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

// findConfigFile returns the config file path to use, or empty if none exists.
// CONFIG_PATH takes priority over the default search list.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envToKey maps DISPLAY_SECTION_SOME_FIELD to section.some_field.
// Only the first underscore separates section from field; the rest of the
// name is the snake_case field name.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}
