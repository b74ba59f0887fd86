// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package main

import (
	"time"

	"github.com/deenboard/display-agent/internal/client"
	"github.com/deenboard/display-agent/internal/netstate"
	"github.com/deenboard/display-agent/internal/realtime"
	"github.com/deenboard/display-agent/internal/store"
	syncpkg "github.com/deenboard/display-agent/internal/sync"
)

// statusSource assembles the /statusz snapshot from the live components.
type statusSource struct {
	channel      *realtime.Channel
	net          *netstate.Tracker
	client       *client.Client
	cache        *store.Cache
	orchestrator *syncpkg.Orchestrator
}

func (s *statusSource) ConnectionState() string {
	return string(s.channel.State())
}

func (s *statusSource) Online() bool {
	return s.net.Online()
}

func (s *statusSource) BreakerStates() map[string]string {
	return s.client.BreakerStates()
}

func (s *statusSource) CacheStats() map[string]any {
	stats := s.cache.Stats()
	return map[string]any{
		"itemCount":    stats.ItemCount,
		"expiredCount": stats.ExpiredCount,
		"byType":       stats.ByType,
	}
}

func (s *statusSource) LastSync() map[string]time.Time {
	out := make(map[string]time.Time, 4)
	for _, d := range []string{
		syncpkg.DomainContent,
		syncpkg.DomainPrayerTimes,
		syncpkg.DomainEvents,
		syncpkg.DomainSchedule,
	} {
		if at := s.orchestrator.LastSync(d); !at.IsZero() {
			out[d] = at
		}
	}
	return out
}

func (s *statusSource) Uptime() time.Duration {
	return s.orchestrator.Uptime()
}
