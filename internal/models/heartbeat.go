// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package models

import "time"

// Telemetry is the opportunistic device state attached to heartbeats.
type Telemetry struct {
	UptimeSeconds   int64  `json:"uptimeSeconds"`
	AppVersion      string `json:"appVersion"`
	ConnectionState string `json:"connectionState"`
	CacheItems      int    `json:"cacheItems"`
	Orientation     string `json:"orientation,omitempty"`
}

// HeartbeatRequest is the HTTP heartbeat body. Pending command responses
// are drained into it and removed only after the heartbeat succeeds.
type HeartbeatRequest struct {
	ScreenID         string            `json:"screenId"`
	Timestamp        time.Time         `json:"timestamp"`
	Telemetry        *Telemetry        `json:"telemetry,omitempty"`
	CommandResponses []CommandResponse `json:"commandResponses,omitempty"`
}

// HeartbeatResponse may carry commands queued server-side while the
// realtime channel was down. These flow through the same dedup path as
// pushed commands, so double delivery is harmless.
type HeartbeatResponse struct {
	Acknowledged bool      `json:"acknowledged"`
	ServerTime   time.Time `json:"serverTime"`
	Commands     []Command `json:"commands,omitempty"`
}
