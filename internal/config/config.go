// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package config provides layered configuration for the display agent.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via DISPLAY_* variables
//
// Config is immutable after Load() and safe for concurrent read access
// from multiple goroutines.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all agent configuration loaded from defaults, config file,
// and environment variables.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Realtime    RealtimeConfig    `koanf:"realtime"`
	Cache       CacheConfig       `koanf:"cache"`
	Sync        SyncConfig        `koanf:"sync"`
	Commands    CommandsConfig    `koanf:"commands"`
	Diagnostics DiagnosticsConfig `koanf:"diagnostics"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig describes the upstream content API the agent syncs from.
type ServerConfig struct {
	// BaseURL is the root of the content API, e.g. https://api.deenboard.example.
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Timeout bounds each individual HTTP request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RetryAttempts is the per-fetch retry ceiling for transient failures
	// (429 and 5xx responses).
	RetryAttempts int `koanf:"retry_attempts" validate:"gte=1,lte=10"`

	// RetryBaseDelay is the first retry delay; it doubles per attempt.
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gt=0"`

	// RetryMaxDelay caps the backoff ladder.
	RetryMaxDelay time.Duration `koanf:"retry_max_delay" validate:"gt=0"`

	// ContentCooldown is how long a tripped content-class endpoint stays
	// suppressed before a probe is allowed.
	ContentCooldown time.Duration `koanf:"content_cooldown" validate:"gt=0"`

	// HeartbeatCooldown is the tripped-endpoint cooldown for the heartbeat
	// endpoint, shorter so liveness recovers quickly.
	HeartbeatCooldown time.Duration `koanf:"heartbeat_cooldown" validate:"gt=0"`

	// DedupWindow is the grace period an in-flight request entry stays
	// shareable after it settles, absorbing near-simultaneous bursts.
	DedupWindow time.Duration `koanf:"dedup_window" validate:"gte=0"`
}

// RealtimeConfig describes the WebSocket channel to the control plane.
type RealtimeConfig struct {
	// URL is the WebSocket endpoint, e.g. wss://rt.deenboard.example/display.
	URL string `koanf:"url" validate:"required"`

	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0"`

	// HeartbeatNormal is the steady-state heartbeat cadence.
	HeartbeatNormal time.Duration `koanf:"heartbeat_normal" validate:"gt=0"`

	// HeartbeatFast is the cadence used while command acknowledgements are
	// outstanding, so acks reach the server quickly.
	HeartbeatFast time.Duration `koanf:"heartbeat_fast" validate:"gt=0"`

	// ReconnectBase is the first reconnect delay; it doubles per attempt.
	ReconnectBase time.Duration `koanf:"reconnect_base" validate:"gt=0"`

	// ReconnectMax caps the reconnect delay.
	ReconnectMax time.Duration `koanf:"reconnect_max" validate:"gt=0"`

	// ReconnectAttempts is the ceiling before the channel gives up and
	// parks in the error state awaiting a manual Connect().
	ReconnectAttempts int `koanf:"reconnect_attempts" validate:"gte=1"`

	// ReadTimeout is the per-message read deadline; a silent peer beyond
	// this is treated as a dead connection.
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"gt=0"`

	// WriteTimeout bounds outbound writes including control frames.
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// CacheConfig describes the durable TTL cache.
type CacheConfig struct {
	// Dir is the BadgerDB directory. Empty selects in-memory mode (tests).
	Dir string `koanf:"dir"`

	// InMemory forces the in-memory store regardless of Dir.
	InMemory bool `koanf:"in_memory"`

	// SweepInterval is the periodic expired-entry sweep. Zero disables the
	// sweeper; lazy eviction on read keeps the store correct without it.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gte=0"`

	// ContentTTL is the default freshness window for screen content.
	ContentTTL time.Duration `koanf:"content_ttl" validate:"gt=0"`

	// PrayerTimesTTL is the default freshness window for prayer times.
	PrayerTimesTTL time.Duration `koanf:"prayer_times_ttl" validate:"gt=0"`

	// EventsTTL is the default freshness window for events.
	EventsTTL time.Duration `koanf:"events_ttl" validate:"gt=0"`

	// ScheduleTTL is the default freshness window for the weekly schedule.
	ScheduleTTL time.Duration `koanf:"schedule_ttl" validate:"gt=0"`
}

// SyncConfig describes the periodic sync orchestrator.
type SyncConfig struct {
	// Interval between automatic full sync passes.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// QueueCap bounds the number of callers a single pending follow-up
	// sync may coalesce; beyond it new requests are rejected.
	QueueCap int `koanf:"queue_cap" validate:"gte=1"`

	// HeartbeatInterval is the minimum spacing between HTTP heartbeats
	// emitted by sync passes, regardless of how often SyncAll is invoked.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
}

// CommandsConfig describes the remote command processor.
type CommandsConfig struct {
	// DedupWindow is how long a processed command id is remembered; a
	// repeat inside the window is acknowledged but not re-executed.
	DedupWindow time.Duration `koanf:"dedup_window" validate:"gt=0"`

	// TypeCooldown is the minimum spacing between executions of the same
	// command type; bursts are queued and replayed, not dropped.
	TypeCooldown time.Duration `koanf:"type_cooldown" validate:"gt=0"`

	// ResponseLogCap bounds the pending command-response log; oldest
	// entries are evicted first.
	ResponseLogCap int `koanf:"response_log_cap" validate:"gte=1"`

	// DisruptiveCountdown is the cancellable delay before destructive
	// commands (restart, reboot, factory reset) take effect.
	DisruptiveCountdown time.Duration `koanf:"disruptive_countdown" validate:"gte=0"`
}

// DiagnosticsConfig describes the loopback diagnostics listener.
type DiagnosticsConfig struct {
	// Enabled toggles the listener.
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address; keep it loopback-only.
	Addr string `koanf:"addr"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Validate checks the configuration for structural problems using
// struct tags plus a few cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}

	u, err := url.Parse(c.Realtime.URL)
	if err != nil {
		return fmt.Errorf("realtime.url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("realtime.url: scheme %q is not ws or wss", u.Scheme)
	}

	if c.Realtime.HeartbeatFast >= c.Realtime.HeartbeatNormal {
		return fmt.Errorf("realtime.heartbeat_fast (%s) must be shorter than heartbeat_normal (%s)",
			c.Realtime.HeartbeatFast, c.Realtime.HeartbeatNormal)
	}

	if c.Server.RetryBaseDelay > c.Server.RetryMaxDelay {
		return fmt.Errorf("server.retry_base_delay (%s) exceeds retry_max_delay (%s)",
			c.Server.RetryBaseDelay, c.Server.RetryMaxDelay)
	}

	if !c.Cache.InMemory && c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required unless cache.in_memory is set")
	}

	return nil
}
