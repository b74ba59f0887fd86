// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package command executes remote administrative commands exactly once
// per session despite at-least-once delivery. Commands arrive from both
// the heartbeat response and the realtime push path; the processor
// deduplicates by id, throttles by type, dispatches to a handler, and
// persists the outcome for the next heartbeat.
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/store"
)

// Handler executes one command type. The returned message rides the
// acknowledgement; an error marks the command failed.
type Handler func(ctx context.Context, cmd models.Command) (string, error)

// Processor consumes commands from any delivery path. Safe for
// concurrent use.
type Processor struct {
	cfg     config.CommandsConfig
	log     *store.ResponseLog
	actions Actions

	countdown *countdownManager

	mu         sync.Mutex
	seen       map[string]time.Time
	lastByType map[models.CommandType]time.Time
	inProgress map[string]struct{}
	handlers   map[models.CommandType]Handler

	// onResponse delivers completed responses to the realtime ack path.
	onResponse func(models.CommandResponse)
	// nudge requests an immediate out-of-band heartbeat after a command
	// completes, shaving ack latency.
	nudge func()
}

func NewProcessor(cfg config.CommandsConfig, log *store.ResponseLog, actions Actions) *Processor {
	p := &Processor{
		cfg:        cfg,
		log:        log,
		actions:    actions,
		countdown:  newCountdownManager(),
		seen:       make(map[string]time.Time),
		lastByType: make(map[models.CommandType]time.Time),
		inProgress: make(map[string]struct{}),
		handlers:   make(map[models.CommandType]Handler),
	}
	p.registerDefaults()
	return p
}

// SetResponseSink installs the callback invoked with every completed
// response, in addition to the durable response log.
func (p *Processor) SetResponseSink(fn func(models.CommandResponse)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResponse = fn
}

// SetHeartbeatNudge installs the immediate-heartbeat trigger.
func (p *Processor) SetHeartbeatNudge(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nudge = fn
}

// SetCountdownNotifier installs UI callbacks for disruptive-command
// countdowns.
func (p *Processor) SetCountdownNotifier(onStart func(models.CommandType, time.Duration), onCancel func(models.CommandType)) {
	p.countdown.notify = onStart
	p.countdown.onCancel = onCancel
}

// Register installs or overrides the handler for a command type.
func (p *Processor) Register(t models.CommandType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = h
}

// CancelDisruptive aborts a pending restart/reboot/factory-reset
// countdown. Wired to the local UI's cancel button.
func (p *Processor) CancelDisruptive(t models.CommandType) bool {
	return p.countdown.Cancel(t)
}

// Shutdown stops pending countdowns.
func (p *Processor) Shutdown() {
	p.countdown.CancelAll()
}

// Handle runs one command through the dedup, cooldown, and dispatch
// pipeline. Blocks until the handler returns (or the command is dropped
// or queued).
func (p *Processor) Handle(ctx context.Context, cmd models.Command) {
	if !cmd.Valid() {
		logging.Warn().
			Str("commandId", cmd.CommandID).
			Str("type", string(cmd.Type)).
			Msg("Dropping malformed command")
		metrics.CommandsReceived.WithLabelValues(string(cmd.Type), "invalid").Inc()
		return
	}

	now := time.Now()
	p.mu.Lock()
	p.pruneSeenLocked(now)

	if _, dup := p.seen[cmd.CommandID]; dup {
		sink := p.onResponse
		p.mu.Unlock()
		logging.Debug().
			Str("commandId", cmd.CommandID).
			Msg("Duplicate command, acknowledging without re-execution")
		metrics.CommandsReceived.WithLabelValues(string(cmd.Type), "duplicate").Inc()
		if sink != nil {
			sink(models.CommandResponse{
				CommandID:  cmd.CommandID,
				Success:    true,
				Message:    "already processed",
				ExecutedAt: now,
			})
		}
		return
	}

	if _, busy := p.inProgress[cmd.CommandID]; busy {
		p.mu.Unlock()
		metrics.CommandsReceived.WithLabelValues(string(cmd.Type), "in_progress").Inc()
		return
	}

	// Same type inside the cooldown window: replay later instead of
	// dropping, so admin retry bursts are not lost.
	if last, ok := p.lastByType[cmd.Type]; ok {
		if wait := p.cfg.TypeCooldown - now.Sub(last); wait > 0 {
			p.mu.Unlock()
			logging.Debug().
				Str("commandId", cmd.CommandID).
				Str("type", string(cmd.Type)).
				Dur("wait", wait).
				Msg("Command queued behind type cooldown")
			metrics.CommandsReceived.WithLabelValues(string(cmd.Type), "queued").Inc()
			time.AfterFunc(wait, func() {
				p.Handle(ctx, cmd)
			})
			return
		}
	}

	p.seen[cmd.CommandID] = now
	p.lastByType[cmd.Type] = now
	p.inProgress[cmd.CommandID] = struct{}{}
	handler := p.handlers[cmd.Type]
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inProgress, cmd.CommandID)
		p.mu.Unlock()
	}()

	metrics.CommandsReceived.WithLabelValues(string(cmd.Type), "executed").Inc()
	resp := p.execute(ctx, cmd, handler)

	if err := p.log.Append(resp); err != nil {
		logging.Error().Err(err).Str("commandId", cmd.CommandID).Msg("Failed to persist command response")
	}

	p.mu.Lock()
	sink, nudge := p.onResponse, p.nudge
	p.mu.Unlock()
	if sink != nil {
		sink(resp)
	}
	if nudge != nil {
		nudge()
	}
}

func (p *Processor) execute(ctx context.Context, cmd models.Command, handler Handler) models.CommandResponse {
	start := time.Now()
	resp := models.CommandResponse{
		CommandID:  cmd.CommandID,
		ExecutedAt: start,
	}

	if handler == nil {
		resp.Error = fmt.Sprintf("unknown command type %q", cmd.Type)
		logging.Warn().Str("commandId", cmd.CommandID).Str("type", string(cmd.Type)).Msg("No handler for command type")
		return resp
	}

	msg, err := handler(ctx, cmd)
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	metrics.CommandDuration.WithLabelValues(string(cmd.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		resp.Error = err.Error()
		logging.Error().
			Err(err).
			Str("commandId", cmd.CommandID).
			Str("type", string(cmd.Type)).
			Msg("Command failed")
		return resp
	}

	resp.Success = true
	resp.Message = msg
	logging.Info().
		Str("commandId", cmd.CommandID).
		Str("type", string(cmd.Type)).
		Int64("durationMs", resp.ExecutionTimeMs).
		Msg("Command executed")
	return resp
}

// pruneSeenLocked drops seen ids older than the dedup window.
func (p *Processor) pruneSeenLocked(now time.Time) {
	for id, at := range p.seen {
		if now.Sub(at) > p.cfg.DedupWindow {
			delete(p.seen, id)
		}
	}
}
