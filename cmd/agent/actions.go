// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/store"
	syncpkg "github.com/deenboard/display-agent/internal/sync"
)

// agentActions is the production command.Actions implementation. The
// process itself is expected to run under a service manager with
// restart-on-exit, so Restart is a clean shutdown.
type agentActions struct {
	cache        *store.Cache
	creds        *store.Credentials
	orchestrator *syncpkg.Orchestrator
	stateDir     string
	shutdown     func()

	mu          sync.Mutex
	orientation string
}

func newAgentActions(cache *store.Cache, creds *store.Credentials, stateDir string, shutdown func()) *agentActions {
	a := &agentActions{
		cache:       cache,
		creds:       creds,
		stateDir:    stateDir,
		shutdown:    shutdown,
		orientation: "landscape",
	}
	a.loadOrientation()
	return a
}

// setOrchestrator breaks the construction cycle: the orchestrator needs
// the processor, the processor needs actions, and reload actions need
// the orchestrator.
func (a *agentActions) setOrchestrator(o *syncpkg.Orchestrator) {
	a.orchestrator = o
}

func (a *agentActions) Restart(ctx context.Context) error {
	logging.Info().Msg("Restarting agent")
	a.shutdown()
	return nil
}

func (a *agentActions) Reboot(ctx context.Context) error {
	logging.Info().Msg("Rebooting device")
	cmd := exec.CommandContext(ctx, "systemctl", "reboot")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("reboot: %w: %s", err, out)
	}
	return nil
}

func (a *agentActions) FactoryReset(ctx context.Context) error {
	logging.Warn().Msg("Factory reset: wiping credentials, cache, and settings")
	if err := a.cache.ClearAll(); err != nil {
		logging.Error().Err(err).Msg("Failed to clear cache during reset")
	}
	os.Remove(a.settingsPath())
	os.Remove(a.orientationPath())
	if err := a.creds.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	a.shutdown()
	return nil
}

func (a *agentActions) CaptureScreenshot(ctx context.Context) (string, error) {
	path := filepath.Join(a.stateDir, fmt.Sprintf("screenshot-%s.png", uuid.NewString()))
	cmd := exec.CommandContext(ctx, "scrot", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("screenshot: %w: %s", err, out)
	}
	return path, nil
}

func (a *agentActions) SetOrientation(ctx context.Context, orientation string) error {
	a.mu.Lock()
	a.orientation = orientation
	a.mu.Unlock()
	if err := os.WriteFile(a.orientationPath(), []byte(orientation), 0o644); err != nil {
		return fmt.Errorf("persist orientation: %w", err)
	}
	return nil
}

// Orientation returns the current display orientation for telemetry.
func (a *agentActions) Orientation() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orientation
}

func (a *agentActions) DisplayMessage(ctx context.Context, message string, duration time.Duration) error {
	// The renderer watches this file; writing it is the whole handoff.
	payload, err := json.Marshal(map[string]any{
		"message":   message,
		"expiresAt": time.Now().Add(duration).UTC(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.stateDir, "message.json"), payload, 0o644)
}

func (a *agentActions) ApplySettings(ctx context.Context, settings json.RawMessage) error {
	merged, err := mergeSettings(a.settingsPath(), settings)
	if err != nil {
		return err
	}
	return os.WriteFile(a.settingsPath(), merged, 0o644)
}

func (a *agentActions) ReloadContent(ctx context.Context) error {
	return a.orchestrator.SyncAll(ctx, true)
}

func (a *agentActions) RefreshPrayerTimes(ctx context.Context) error {
	return a.orchestrator.SyncDomain(ctx, syncpkg.DomainPrayerTimes, true)
}

func (a *agentActions) ClearCache(ctx context.Context, contentType models.ContentType) error {
	if contentType == "" {
		return a.cache.ClearAll()
	}
	return a.cache.ClearType(contentType)
}

func (a *agentActions) settingsPath() string {
	return filepath.Join(a.stateDir, "settings.json")
}

func (a *agentActions) orientationPath() string {
	return filepath.Join(a.stateDir, "orientation")
}

func (a *agentActions) loadOrientation() {
	data, err := os.ReadFile(a.orientationPath())
	if err != nil {
		return
	}
	a.orientation = string(data)
}

// mergeSettings shallow-merges the pushed object over the stored one so
// partial updates do not drop unrelated keys.
func mergeSettings(path string, update json.RawMessage) ([]byte, error) {
	current := map[string]json.RawMessage{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &current); err != nil {
			logging.Warn().Err(err).Msg("Discarding corrupt settings file")
			current = map[string]json.RawMessage{}
		}
	}

	var pushed map[string]json.RawMessage
	if err := json.Unmarshal(update, &pushed); err != nil {
		return nil, fmt.Errorf("settings payload must be an object: %w", err)
	}
	for k, v := range pushed {
		current[k] = v
	}
	return json.MarshalIndent(current, "", "  ")
}
