// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package realtime

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/models"
)

// Wire event names. Outbound events carry the display: prefix; inbound
// events come from the server's screen/content/emergency namespaces.
const (
	EventHeartbeat    = "display:heartbeat"
	EventCommandAck   = "display:command:ack"
	EventError        = "display:error"
	EventStatus       = "display:status"
	EventSyncRequest  = "display:sync:request"
	EventHeartbeatAck = "display:heartbeat:ack"

	EventCommand           = "screen:command"
	EventOrientation       = "screen:orientation"
	EventContentUpdate     = "content:update"
	EventPrayerTimesUpdate = "prayer-times:update"
	EventEmergencyAlert    = "emergency:alert"
	EventEmergencyClear    = "emergency:clear"
)

// commandEventPrefix marks type-specific command pushes such as
// screen:command:restart.
const commandEventPrefix = EventCommand + ":"

// Frame is the envelope every realtime message travels in.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// hello is the first message on a fresh socket. The server associates
// the connection with the screen or closes it.
type hello struct {
	Type     string `json:"type"`
	ScreenID string `json:"screenId"`
	MasjidID string `json:"masjidId,omitempty"`
	Token    string `json:"token"`
}

// heartbeatPayload is the body of a display:heartbeat frame.
type heartbeatPayload struct {
	ScreenID  string            `json:"screenId"`
	Timestamp time.Time         `json:"timestamp"`
	Telemetry *models.Telemetry `json:"telemetry,omitempty"`
}

// ackPayload is the body of a display:command:ack frame.
type ackPayload struct {
	CommandID string `json:"commandId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// isCommandEvent reports whether the event carries a remote command,
// either the generic form or a type-specific one.
func isCommandEvent(event string) bool {
	return event == EventCommand || strings.HasPrefix(event, commandEventPrefix)
}

// normalizeCommand flattens both command push shapes into one Command.
// Type-specific events may omit the type field in the body; the event
// name suffix is authoritative there.
func normalizeCommand(event string, data json.RawMessage) (models.Command, bool) {
	var cmd models.Command
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cmd); err != nil {
			return models.Command{}, false
		}
	}
	if cmd.Type == "" && strings.HasPrefix(event, commandEventPrefix) {
		cmd.Type = models.CommandType(strings.TrimPrefix(event, commandEventPrefix))
	}
	if cmd.ReceivedAt.IsZero() {
		cmd.ReceivedAt = time.Now()
	}
	if !cmd.Valid() {
		return models.Command{}, false
	}
	return cmd, true
}
