// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package netstate tracks the agent's last observed network reachability.
// There is no platform online/offline signal on kiosk hardware, so the
// flag is fed by transport outcomes: a dial or timeout failure marks the
// agent offline, any successful exchange marks it online. Consumers use
// it to prefer stale cache over doomed network attempts.
package netstate

import (
	"sync"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
)

// Tracker holds the reachability flag and change subscriptions.
type Tracker struct {
	mu     sync.RWMutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// New creates a tracker. The agent starts optimistic: assume online until
// a transport says otherwise, so the first fetch is attempted.
func New() *Tracker {
	metrics.Online.Set(1)
	return &Tracker{
		online: true,
		subs:   make(map[int]func(bool)),
	}
}

// Online reports the last observed reachability.
func (t *Tracker) Online() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online
}

// MarkOnline records a successful network exchange.
func (t *Tracker) MarkOnline() { t.set(true) }

// MarkOffline records a transport-level failure (dial error, timeout).
func (t *Tracker) MarkOffline() { t.set(false) }

func (t *Tracker) set(online bool) {
	t.mu.Lock()
	if t.online == online {
		t.mu.Unlock()
		return
	}
	t.online = online
	subs := make([]func(bool), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	if online {
		metrics.Online.Set(1)
		logging.Info().Msg("Network reachable")
	} else {
		metrics.Online.Set(0)
		logging.Warn().Msg("Network unreachable, serving from cache")
	}

	for _, fn := range subs {
		fn(online)
	}
}

// OnChange registers a callback for reachability transitions. Returns an
// unsubscribe func.
func (t *Tracker) OnChange(fn func(online bool)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}
