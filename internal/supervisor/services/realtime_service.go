// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package services

import (
	"context"
	"errors"
	"time"

	"github.com/deenboard/display-agent/internal/realtime"
)

// ErrChannelDead signals that the realtime channel burned through its
// reconnect attempts. Returning it lets suture restart the service,
// which issues the fresh Connect the channel requires to resume.
var ErrChannelDead = errors.New("realtime channel exhausted reconnect attempts")

// errPollInterval is how often the service checks for the error state.
const errPollInterval = 5 * time.Second

// RealtimeService supervises the WebSocket channel. The channel manages
// its own reconnect backoff; the supervisor only steps in once the
// channel gives up entirely.
type RealtimeService struct {
	channel *realtime.Channel
}

func NewRealtimeService(ch *realtime.Channel) *RealtimeService {
	return &RealtimeService{channel: ch}
}

// Serve implements suture.Service.
func (s *RealtimeService) Serve(ctx context.Context) error {
	if err := s.channel.Connect(ctx); err != nil {
		if errors.Is(err, realtime.ErrNoCredentials) {
			// Not paired yet. Back off via suture rather than spinning.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errPollInterval):
				return err
			}
		}
		return err
	}

	ticker := time.NewTicker(errPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.channel.Disconnect()
			return ctx.Err()
		case <-ticker.C:
			if s.channel.State() == realtime.StateError {
				return ErrChannelDead
			}
		}
	}
}

func (s *RealtimeService) String() string { return "realtime-channel" }
