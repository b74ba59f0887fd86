// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package sync

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/realtime"
)

// Domain names, also used as last-sync keys in the state store.
const (
	DomainContent     = "content"
	DomainPrayerTimes = "prayer-times"
	DomainEvents      = "events"
	DomainSchedule    = "schedule"
)

type domain struct {
	name string
	run  func(ctx context.Context, force bool) error
}

// domains returns the sequential sync order. Each domain fails
// independently; a tripped breaker on one endpoint never blocks the
// others on the same pass.
func (o *Orchestrator) domains() []domain {
	return []domain{
		{DomainContent, func(ctx context.Context, force bool) error {
			_, err := o.client.FetchContent(ctx, force, o.cacheCfg.ContentTTL)
			return err
		}},
		{DomainPrayerTimes, func(ctx context.Context, force bool) error {
			_, err := o.client.FetchPrayerTimes(ctx, force, o.cacheCfg.PrayerTimesTTL)
			return err
		}},
		{DomainEvents, func(ctx context.Context, force bool) error {
			_, err := o.client.FetchEvents(ctx, force, o.cacheCfg.EventsTTL)
			return err
		}},
		{DomainSchedule, func(ctx context.Context, force bool) error {
			_, err := o.client.FetchSchedule(ctx, force, o.cacheCfg.ScheduleTTL)
			return err
		}},
	}
}

func (o *Orchestrator) syncDomain(ctx context.Context, d domain, force bool) error {
	start := time.Now()
	err := d.run(ctx, force)
	metrics.SyncDomainDuration.WithLabelValues(d.name).Observe(time.Since(start).Seconds())

	if err != nil {
		logging.Warn().
			Err(err).
			Str("domain", d.name).
			Msg("Domain sync failed")
		return err
	}

	if err := o.state.SetLastSync(d.name, time.Now()); err != nil {
		logging.Error().Err(err).Str("domain", d.name).Msg("Failed to persist last-sync time")
	}
	return nil
}

// SyncDomain forces a single-domain refresh, used by push events and
// commands like refresh-prayer-times.
func (o *Orchestrator) SyncDomain(ctx context.Context, name string, force bool) error {
	for _, d := range o.domains() {
		if d.name == name {
			return o.syncDomain(ctx, d, force)
		}
	}
	return nil
}

// HandleEvent reacts to realtime push frames: content change
// notifications trigger targeted refreshes, emergency alerts are
// persisted so they survive restarts.
func (o *Orchestrator) HandleEvent(ctx context.Context, frame realtime.Frame) {
	switch frame.Event {
	case realtime.EventContentUpdate:
		if err := o.SyncDomain(ctx, DomainContent, true); err != nil {
			logging.Warn().Err(err).Msg("Content refresh after push failed")
		}
	case realtime.EventPrayerTimesUpdate:
		if err := o.SyncDomain(ctx, DomainPrayerTimes, true); err != nil {
			logging.Warn().Err(err).Msg("Prayer times refresh after push failed")
		}
	case realtime.EventEmergencyAlert:
		var alert models.EmergencyAlert
		if err := json.Unmarshal(frame.Data, &alert); err != nil {
			logging.Warn().Err(err).Msg("Dropping malformed emergency alert")
			return
		}
		if err := o.state.SetAlert(&alert); err != nil {
			logging.Error().Err(err).Msg("Failed to persist emergency alert")
		}
	case realtime.EventEmergencyClear:
		if err := o.state.ClearAlert(); err != nil {
			logging.Error().Err(err).Msg("Failed to clear emergency alert")
		}
	}
}

// ActiveAlert returns the persisted emergency alert, nil when none.
func (o *Orchestrator) ActiveAlert() *models.EmergencyAlert {
	return o.state.Alert()
}
