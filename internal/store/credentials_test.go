// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package store

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/models"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCredentialsSetGetClear(t *testing.T) {
	db := newTestDB(t)
	s, err := NewCredentials(db)
	if err != nil {
		t.Fatal(err)
	}

	if s.Authenticated() {
		t.Error("fresh store should not be authenticated")
	}

	pair := models.Credentials{APIKey: "key-1", ScreenID: "scr-1", MasjidID: "msj-1"}
	if err := s.SetPair(pair); err != nil {
		t.Fatalf("SetPair: %v", err)
	}
	if !s.Authenticated() {
		t.Error("expected authenticated after SetPair")
	}
	if got := s.Get(); got != pair {
		t.Errorf("Get = %+v, want %+v", got, pair)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Authenticated() {
		t.Error("expected unauthenticated after Clear")
	}
}

func TestCredentialsRejectIncompletePair(t *testing.T) {
	s, err := NewCredentials(newTestDB(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetPair(models.Credentials{APIKey: "only-key"}); err == nil {
		t.Error("expected error for pair without screenId")
	}
	if err := s.SetPair(models.Credentials{ScreenID: "only-screen"}); err == nil {
		t.Error("expected error for pair without apiKey")
	}
}

func TestCredentialsPersistAcrossReopen(t *testing.T) {
	db := newTestDB(t)

	s, err := NewCredentials(db)
	if err != nil {
		t.Fatal(err)
	}
	pair := models.Credentials{APIKey: "key", ScreenID: "scr"}
	if err := s.SetPair(pair); err != nil {
		t.Fatal(err)
	}

	// A second store over the same DB simulates process restart.
	s2, err := NewCredentials(db)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Get(); got != pair {
		t.Errorf("reloaded pair = %+v, want %+v", got, pair)
	}
}

func TestCredentialsOnClearedFires(t *testing.T) {
	s, err := NewCredentials(newTestDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetPair(models.Credentials{APIKey: "k", ScreenID: "s"}); err != nil {
		t.Fatal(err)
	}

	fired := 0
	unsub := s.OnCleared(func() { fired++ })
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Errorf("OnCleared fired %d times, want 1", fired)
	}

	unsub()
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Errorf("unsubscribed callback fired, count %d", fired)
	}
}

func TestCredentialsLegacyKeyMigration(t *testing.T) {
	db := newTestDB(t)

	// Seed the historical split layout.
	err := db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("credentials:apiKey"), []byte("legacy-key")); err != nil {
			return err
		}
		return txn.Set([]byte("credentials:screenId"), []byte("legacy-screen"))
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewCredentials(db)
	if err != nil {
		t.Fatal(err)
	}

	got := s.Get()
	if got.APIKey != "legacy-key" || got.ScreenID != "legacy-screen" {
		t.Errorf("migration produced %+v", got)
	}

	// Legacy keys are gone; only the canonical record remains.
	err = db.View(func(txn *badger.Txn) error {
		for _, k := range legacyCredKeys {
			if _, err := txn.Get([]byte(k)); err == nil {
				t.Errorf("legacy key %q survived migration", k)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCredentialsLegacyJSONBlobMigration(t *testing.T) {
	db := newTestDB(t)

	legacy := models.Credentials{APIKey: "blob-key", ScreenID: "blob-screen", MasjidID: "blob-masjid"}
	raw, _ := json.Marshal(&legacy)
	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("masjid_credentials"), raw)
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewCredentials(db)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Get(); got != legacy {
		t.Errorf("blob migration produced %+v, want %+v", got, legacy)
	}
}
