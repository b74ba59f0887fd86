// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package command

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
)

// Actions is the platform surface commands act on. The agent binary
// provides the real implementation; tests substitute a recorder.
type Actions interface {
	// Restart restarts the kiosk application.
	Restart(ctx context.Context) error
	// Reboot reboots the device.
	Reboot(ctx context.Context) error
	// FactoryReset wipes credentials, cache, and settings.
	FactoryReset(ctx context.Context) error
	// CaptureScreenshot grabs the current display and returns a
	// reference (path or upload id) for the acknowledgement.
	CaptureScreenshot(ctx context.Context) (string, error)
	// SetOrientation rotates the display.
	SetOrientation(ctx context.Context, orientation string) error
	// DisplayMessage shows an operator message on screen.
	DisplayMessage(ctx context.Context, message string, duration time.Duration) error
	// ApplySettings merges pushed settings into local state.
	ApplySettings(ctx context.Context, settings json.RawMessage) error
	// ReloadContent forces a full content re-sync.
	ReloadContent(ctx context.Context) error
	// RefreshPrayerTimes forces a prayer-times re-sync.
	RefreshPrayerTimes(ctx context.Context) error
	// ClearCache drops cached content, one type or all.
	ClearCache(ctx context.Context, contentType models.ContentType) error
}

type orientationPayload struct {
	Orientation string `json:"orientation"`
}

type messagePayload struct {
	Message         string `json:"message"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type clearCachePayload struct {
	ContentType models.ContentType `json:"contentType,omitempty"`
}

var validOrientations = map[string]bool{
	"landscape":         true,
	"portrait":          true,
	"landscape-flipped": true,
	"portrait-flipped":  true,
}

func (p *Processor) registerDefaults() {
	p.handlers[models.CommandRestart] = p.disruptive(models.CommandRestart, p.actions.Restart)
	p.handlers[models.CommandReboot] = p.disruptive(models.CommandReboot, p.actions.Reboot)
	p.handlers[models.CommandFactoryReset] = p.disruptive(models.CommandFactoryReset, p.actions.FactoryReset)

	p.handlers[models.CommandReloadContent] = func(ctx context.Context, cmd models.Command) (string, error) {
		if err := p.actions.ReloadContent(ctx); err != nil {
			return "", err
		}
		return "content reload triggered", nil
	}

	p.handlers[models.CommandRefreshPrayer] = func(ctx context.Context, cmd models.Command) (string, error) {
		if err := p.actions.RefreshPrayerTimes(ctx); err != nil {
			return "", err
		}
		return "prayer times refresh triggered", nil
	}

	p.handlers[models.CommandClearCache] = func(ctx context.Context, cmd models.Command) (string, error) {
		var payload clearCachePayload
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				return "", fmt.Errorf("invalid clear-cache payload: %w", err)
			}
		}
		if err := p.actions.ClearCache(ctx, payload.ContentType); err != nil {
			return "", err
		}
		if payload.ContentType == "" {
			return "cache cleared", nil
		}
		return fmt.Sprintf("cache cleared: %s", payload.ContentType), nil
	}

	p.handlers[models.CommandUpdateSettings] = func(ctx context.Context, cmd models.Command) (string, error) {
		if len(cmd.Payload) == 0 {
			return "", fmt.Errorf("update-settings requires a payload")
		}
		if err := p.actions.ApplySettings(ctx, cmd.Payload); err != nil {
			return "", err
		}
		return "settings applied", nil
	}

	p.handlers[models.CommandCaptureScreenshot] = func(ctx context.Context, cmd models.Command) (string, error) {
		ref, err := p.actions.CaptureScreenshot(ctx)
		if err != nil {
			return "", err
		}
		return ref, nil
	}

	p.handlers[models.CommandUpdateOrientation] = func(ctx context.Context, cmd models.Command) (string, error) {
		var payload orientationPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return "", fmt.Errorf("invalid orientation payload: %w", err)
		}
		if !validOrientations[payload.Orientation] {
			return "", fmt.Errorf("unknown orientation %q", payload.Orientation)
		}
		if err := p.actions.SetOrientation(ctx, payload.Orientation); err != nil {
			return "", err
		}
		return fmt.Sprintf("orientation set to %s", payload.Orientation), nil
	}

	p.handlers[models.CommandDisplayMessage] = func(ctx context.Context, cmd models.Command) (string, error) {
		var payload messagePayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return "", fmt.Errorf("invalid message payload: %w", err)
		}
		if payload.Message == "" {
			return "", fmt.Errorf("display-message requires a message")
		}
		duration := time.Duration(payload.DurationSeconds) * time.Second
		if err := p.actions.DisplayMessage(ctx, payload.Message, duration); err != nil {
			return "", err
		}
		return "message displayed", nil
	}
}

// disruptive wraps an effect behind the cancellable countdown. The
// handler acknowledges scheduling immediately; the effect itself fires
// after the countdown unless canceled.
func (p *Processor) disruptive(kind models.CommandType, effect func(context.Context) error) Handler {
	return func(ctx context.Context, cmd models.Command) (string, error) {
		delay := p.cfg.DisruptiveCountdown
		p.countdown.Schedule(kind, delay, func() {
			// Detached from the command context: the countdown outlives
			// the Handle call that armed it.
			if err := effect(context.Background()); err != nil {
				logging.Error().Err(err).Str("type", string(kind)).Msg("Disruptive effect failed")
			}
		})
		return fmt.Sprintf("%s scheduled in %s", kind, delay), nil
	}
}
