// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// CommandType identifies a remote administrative action.
type CommandType string

// Known command types. Unknown types are rejected at validation.
const (
	CommandRestart           CommandType = "restart"
	CommandReloadContent     CommandType = "reload-content"
	CommandClearCache        CommandType = "clear-cache"
	CommandUpdateSettings    CommandType = "update-settings"
	CommandFactoryReset      CommandType = "factory-reset"
	CommandCaptureScreenshot CommandType = "capture-screenshot"
	CommandUpdateOrientation CommandType = "update-orientation"
	CommandRefreshPrayer     CommandType = "refresh-prayer-times"
	CommandDisplayMessage    CommandType = "display-message"
	CommandReboot            CommandType = "reboot"
)

// Disruptive reports whether the command type interrupts the display and
// must therefore run behind a cancellable countdown.
func (t CommandType) Disruptive() bool {
	switch t {
	case CommandRestart, CommandReboot, CommandFactoryReset:
		return true
	default:
		return false
	}
}

// Command is the normalized shape of a remote command, whether it arrived
// via the realtime channel or in a heartbeat response. Delivery is
// at-least-once; CommandID is the dedup key.
type Command struct {
	CommandID  string          `json:"commandId"`
	Type       CommandType     `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}

// Valid reports whether the command carries the fields required for
// idempotent processing.
func (c *Command) Valid() bool {
	return c != nil && c.CommandID != "" && c.Type != ""
}

// CommandResponse records the outcome of one command execution. Responses
// ride upstream on the next successful heartbeat.
type CommandResponse struct {
	CommandID       string    `json:"commandId"`
	Success         bool      `json:"success"`
	Message         string    `json:"message,omitempty"`
	Error           string    `json:"error,omitempty"`
	ExecutedAt      time.Time `json:"executedAt"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
}
