// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package command

import (
	"sync"
	"time"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
)

// countdownManager delays disruptive effects (restart, reboot, factory
// reset) behind a cancellable timer so the local UI can warn whoever is
// standing in front of the screen. Scheduling the same kind again
// replaces the pending timer.
type countdownManager struct {
	mu       sync.Mutex
	pending  map[models.CommandType]*time.Timer
	notify   func(kind models.CommandType, delay time.Duration)
	onCancel func(kind models.CommandType)
}

func newCountdownManager() *countdownManager {
	return &countdownManager{
		pending: make(map[models.CommandType]*time.Timer),
	}
}

// Schedule arms the effect to fire after delay.
func (m *countdownManager) Schedule(kind models.CommandType, delay time.Duration, effect func()) {
	m.mu.Lock()
	if prev, ok := m.pending[kind]; ok {
		prev.Stop()
	}
	m.pending[kind] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.pending, kind)
		m.mu.Unlock()
		effect()
	})
	notify := m.notify
	m.mu.Unlock()

	logging.Info().
		Str("command", string(kind)).
		Dur("delay", delay).
		Msg("Disruptive command scheduled")
	if notify != nil {
		notify(kind, delay)
	}
}

// Cancel stops a pending effect. Reports whether one was pending.
func (m *countdownManager) Cancel(kind models.CommandType) bool {
	m.mu.Lock()
	timer, ok := m.pending[kind]
	if ok {
		timer.Stop()
		delete(m.pending, kind)
	}
	onCancel := m.onCancel
	m.mu.Unlock()

	if ok {
		logging.Info().Str("command", string(kind)).Msg("Disruptive command canceled")
		if onCancel != nil {
			onCancel(kind)
		}
	}
	return ok
}

// CancelAll stops every pending effect. Used on shutdown.
func (m *countdownManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for kind, timer := range m.pending {
		timer.Stop()
		delete(m.pending, kind)
	}
}

// Pending reports whether an effect of the given kind is armed.
func (m *countdownManager) Pending(kind models.CommandType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[kind]
	return ok
}
