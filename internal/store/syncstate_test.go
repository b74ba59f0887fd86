// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package store

import (
	"testing"
	"time"

	"github.com/deenboard/display-agent/internal/models"
)

func TestSyncStateLastSync(t *testing.T) {
	s := NewSyncState(newTestDB(t))

	if got := s.LastSync("content"); !got.IsZero() {
		t.Fatalf("expected zero time before first sync, got %v", got)
	}

	at := time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
	if err := s.SetLastSync("content", at); err != nil {
		t.Fatalf("set last sync: %v", err)
	}

	if got := s.LastSync("content"); !got.Equal(at) {
		t.Errorf("last sync = %v, want %v", got, at)
	}
	if got := s.LastSync("prayer-times"); !got.IsZero() {
		t.Errorf("unrelated domain should stay zero, got %v", got)
	}
}

func TestSyncStateAlertRoundTrip(t *testing.T) {
	s := NewSyncState(newTestDB(t))

	if s.Alert() != nil {
		t.Fatal("expected no alert on a fresh store")
	}

	alert := &models.EmergencyAlert{
		ID:       "alert-1",
		Message:  "building evacuation",
		Level:    "critical",
		IssuedAt: time.Now().UTC(),
	}
	if err := s.SetAlert(alert); err != nil {
		t.Fatalf("set alert: %v", err)
	}

	got := s.Alert()
	if got == nil {
		t.Fatal("expected stored alert back")
	}
	if got.ID != alert.ID || got.Message != alert.Message {
		t.Errorf("alert = %+v, want %+v", got, alert)
	}

	if err := s.ClearAlert(); err != nil {
		t.Fatalf("clear alert: %v", err)
	}
	if s.Alert() != nil {
		t.Error("alert should be gone after clear")
	}
	// Clearing twice is fine.
	if err := s.ClearAlert(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestSyncStateAlertExpiry(t *testing.T) {
	s := NewSyncState(newTestDB(t))

	alert := &models.EmergencyAlert{
		ID:        "alert-2",
		Message:   "stale",
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := s.SetAlert(alert); err != nil {
		t.Fatalf("set alert: %v", err)
	}

	if s.Alert() != nil {
		t.Error("expired alert should be dropped on read")
	}
}
