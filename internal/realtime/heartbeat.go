// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package realtime

import (
	"context"
	"time"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
)

// heartbeatLoop emits display:heartbeat frames on a dual cadence: the
// normal interval while idle, the fast interval while any command ack is
// outstanding. Receiving a command kicks the timer onto the fast cadence
// immediately rather than waiting out the current normal interval.
func (c *Channel) heartbeatLoop(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	timer := time.NewTimer(c.heartbeatInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-c.hbKick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.cfg.HeartbeatFast)
		case <-timer.C:
			c.sendHeartbeat()
			timer.Reset(c.heartbeatInterval())
		}
	}
}

// heartbeatInterval picks the cadence from the outstanding-ack count.
func (c *Channel) heartbeatInterval() time.Duration {
	if c.OutstandingAcks() > 0 {
		return c.cfg.HeartbeatFast
	}
	return c.cfg.HeartbeatNormal
}

func (c *Channel) sendHeartbeat() {
	creds := c.creds.Get()
	payload := heartbeatPayload{
		ScreenID:  creds.ScreenID,
		Timestamp: time.Now().UTC(),
	}
	if c.telemetry != nil {
		t := c.telemetry()
		payload.Telemetry = &t
	}

	cadence := "normal"
	if c.OutstandingAcks() > 0 {
		cadence = "fast"
	}

	if err := c.Send(EventHeartbeat, payload); err != nil {
		logging.Debug().Err(err).Msg("Heartbeat send skipped")
		return
	}
	metrics.HeartbeatsSent.WithLabelValues("websocket", cadence).Inc()
}
