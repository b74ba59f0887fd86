// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/store"
)

func testActions(t *testing.T) *agentActions {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	creds, err := store.NewCredentials(db)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	return newAgentActions(store.NewCache(db), creds, t.TempDir(), func() {})
}

func TestApplySettingsMerges(t *testing.T) {
	a := testActions(t)
	ctx := context.Background()

	if err := a.ApplySettings(ctx, json.RawMessage(`{"brightness":80,"theme":"dark"}`)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := a.ApplySettings(ctx, json.RawMessage(`{"brightness":40}`)); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	data, err := os.ReadFile(a.settingsPath())
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if got["brightness"] != float64(40) {
		t.Errorf("brightness = %v, want 40", got["brightness"])
	}
	if got["theme"] != "dark" {
		t.Errorf("theme = %v, want dark (merge must keep unrelated keys)", got["theme"])
	}
}

func TestApplySettingsRejectsNonObject(t *testing.T) {
	a := testActions(t)
	if err := a.ApplySettings(context.Background(), json.RawMessage(`[1,2]`)); err == nil {
		t.Fatal("array payload should be rejected")
	}
}

func TestOrientationPersistsAcrossRestart(t *testing.T) {
	a := testActions(t)
	if err := a.SetOrientation(context.Background(), "portrait"); err != nil {
		t.Fatalf("set orientation: %v", err)
	}

	reloaded := newAgentActions(a.cache, a.creds, a.stateDir, func() {})
	if got := reloaded.Orientation(); got != "portrait" {
		t.Errorf("orientation after reload = %q, want portrait", got)
	}
}

func TestDisplayMessageWritesFile(t *testing.T) {
	a := testActions(t)
	if err := a.DisplayMessage(context.Background(), "Jumu'ah moved to 13:30", 0); err != nil {
		t.Fatalf("display message: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(a.stateDir, "message.json"))
	if err != nil {
		t.Fatalf("read message file: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["message"] != "Jumu'ah moved to 13:30" {
		t.Errorf("message = %v", got["message"])
	}
}

func TestFactoryResetClearsState(t *testing.T) {
	a := testActions(t)
	called := false
	a.shutdown = func() { called = true }

	if err := a.ApplySettings(context.Background(), json.RawMessage(`{"theme":"dark"}`)); err != nil {
		t.Fatalf("apply settings: %v", err)
	}
	if err := a.FactoryReset(context.Background()); err != nil {
		t.Fatalf("factory reset: %v", err)
	}

	if _, err := os.Stat(a.settingsPath()); !os.IsNotExist(err) {
		t.Error("settings file should be removed")
	}
	if a.creds.Authenticated() {
		t.Error("credentials should be cleared")
	}
	if !called {
		t.Error("factory reset should trigger shutdown")
	}
}
