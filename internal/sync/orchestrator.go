// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package sync coordinates what the kiosk fetches and when. At most one
// sync pass runs at a time; concurrent requests coalesce into a single
// pending follow-up with a bounded queue depth. Domains are synced
// sequentially so partial cache writes never interleave.
package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deenboard/display-agent/internal/client"
	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/store"
)

// ErrQueueFull means too many callers are already waiting on the
// pending follow-up sync.
var ErrQueueFull = errors.New("sync: follow-up queue full")

// Orchestrator owns the sync lifecycle. Construct with New, then Start
// for the periodic loop; SyncAll may be called from any goroutine.
type Orchestrator struct {
	cfg      config.SyncConfig
	cacheCfg config.CacheConfig
	client   *client.Client
	state    *store.SyncState
	log      *store.ResponseLog
	creds    *store.Credentials

	mu           sync.Mutex
	inProgress   bool
	pendingCount int
	pendingForce bool
	running      bool
	stopChan     chan struct{}
	wg           sync.WaitGroup

	hbLimiter *rate.Limiter
	startedAt time.Time

	// commandSink receives commands piggybacked on heartbeat responses.
	commandSink func(context.Context, models.Command)
	// telemetry is sampled into each HTTP heartbeat. Optional.
	telemetry func() models.Telemetry
}

func New(cfg config.SyncConfig, cacheCfg config.CacheConfig, c *client.Client, state *store.SyncState, log *store.ResponseLog, creds *store.Credentials) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		cacheCfg:  cacheCfg,
		client:    c,
		state:     state,
		log:       log,
		creds:     creds,
		hbLimiter: rate.NewLimiter(rate.Every(cfg.HeartbeatInterval), 1),
		startedAt: time.Now(),
	}
}

// SetCommandSink installs the consumer for commands delivered via the
// heartbeat response.
func (o *Orchestrator) SetCommandSink(fn func(context.Context, models.Command)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commandSink = fn
}

// SetTelemetryProvider installs the telemetry sampler.
func (o *Orchestrator) SetTelemetryProvider(fn func() models.Telemetry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.telemetry = fn
}

// Start launches the periodic sync loop and runs an initial pass. If a
// persisted emergency alert survived a restart it is logged so the UI
// layer can re-display it.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.stopChan = make(chan struct{})
	stop := o.stopChan
	o.mu.Unlock()

	if alert := o.state.Alert(); alert != nil {
		logging.Warn().
			Str("alertId", alert.ID).
			Msg("Active emergency alert restored from disk")
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.syncAll(ctx, false, "startup"); err != nil {
			logging.Warn().Err(err).Msg("Initial sync failed")
		}

		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := o.syncAll(ctx, false, "interval"); err != nil {
					logging.Warn().Err(err).Msg("Periodic sync failed")
				}
			}
		}
	}()
}

// Stop halts the periodic loop. In-flight passes finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopChan)
	o.mu.Unlock()
	o.wg.Wait()
}

// SyncAll requests a full pass over every domain. When a pass is
// already in flight, callers coalesce into one pending follow-up: a
// forced request upgrades the follow-up to forced, a duplicate
// non-forced request is absorbed, and queue depth beyond the cap is
// rejected with ErrQueueFull.
func (o *Orchestrator) SyncAll(ctx context.Context, force bool) error {
	return o.syncAll(ctx, force, "manual")
}

func (o *Orchestrator) syncAll(ctx context.Context, force bool, trigger string) error {
	o.mu.Lock()
	if o.inProgress {
		if o.pendingCount > 0 {
			if force && !o.pendingForce {
				o.pendingForce = true
				o.pendingCount++
				o.mu.Unlock()
				return nil
			}
			if o.pendingCount >= o.cfg.QueueCap {
				o.mu.Unlock()
				metrics.SyncQueueRejections.Inc()
				return ErrQueueFull
			}
			if !force {
				// Absorbed into the already-pending follow-up.
				o.mu.Unlock()
				return nil
			}
			o.pendingCount++
			o.mu.Unlock()
			return nil
		}
		o.pendingCount = 1
		o.pendingForce = force
		o.mu.Unlock()
		return nil
	}
	o.inProgress = true
	o.mu.Unlock()

	o.runPass(ctx, force, trigger)

	// Settle: release the in-flight slot and run the coalesced
	// follow-up if one accumulated.
	o.mu.Lock()
	o.inProgress = false
	pending, pendingForce := o.pendingCount, o.pendingForce
	o.pendingCount, o.pendingForce = 0, false
	o.mu.Unlock()

	if pending > 0 {
		return o.syncAll(ctx, pendingForce, "pending")
	}
	return nil
}

// runPass executes one sequential sweep over all domains plus a
// throttled heartbeat.
func (o *Orchestrator) runPass(ctx context.Context, force bool, trigger string) {
	start := time.Now()
	logging.Debug().
		Bool("force", force).
		Str("trigger", trigger).
		Msg("Sync pass starting")

	failed := 0
	for _, d := range o.domains() {
		if ctx.Err() != nil {
			return
		}
		if err := o.syncDomain(ctx, d, force); err != nil {
			failed++
		}
	}

	o.sendHeartbeat(ctx)

	outcome := "ok"
	switch {
	case failed == len(o.domains()):
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	metrics.SyncRuns.WithLabelValues(trigger, outcome).Inc()
	logging.Info().
		Str("trigger", trigger).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("Sync pass finished")
}

// sendHeartbeat posts telemetry plus drained command responses, rate
// limited so bursts of sync passes cannot flood the endpoint. Commands
// riding the response are handed to the command sink.
func (o *Orchestrator) sendHeartbeat(ctx context.Context) {
	if !o.hbLimiter.Allow() {
		return
	}

	creds := o.creds.Get()
	if !creds.Authenticated() {
		return
	}

	responses, err := o.log.List()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to drain response log")
		responses = nil
	}

	req := models.HeartbeatRequest{
		ScreenID:         creds.ScreenID,
		Timestamp:        time.Now().UTC(),
		CommandResponses: responses,
	}
	o.mu.Lock()
	sampler := o.telemetry
	sink := o.commandSink
	o.mu.Unlock()
	if sampler != nil {
		t := sampler()
		req.Telemetry = &t
	}

	resp, err := o.client.SendHeartbeat(ctx, req)
	if err != nil {
		logging.Warn().Err(err).Msg("Heartbeat failed")
		return
	}
	metrics.HeartbeatsSent.WithLabelValues("http", "normal").Inc()

	// Responses are only removed once the server has seen them.
	if len(responses) > 0 {
		if err := o.log.Ack(len(responses)); err != nil {
			logging.Error().Err(err).Msg("Failed to ack delivered responses")
		}
	}

	if sink != nil {
		for _, cmd := range resp.Commands {
			sink(ctx, cmd)
		}
	}
}

// Nudge requests an immediate out-of-band heartbeat, used to shorten
// command ack latency. Still subject to the heartbeat rate limit.
func (o *Orchestrator) Nudge(ctx context.Context) {
	o.sendHeartbeat(ctx)
}

// LastSync reports when a domain last synced successfully.
func (o *Orchestrator) LastSync(domain string) time.Time {
	return o.state.LastSync(domain)
}

// Uptime reports how long the orchestrator has been alive.
func (o *Orchestrator) Uptime() time.Duration {
	return time.Since(o.startedAt)
}
