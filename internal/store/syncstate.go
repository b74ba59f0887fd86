// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/models"
)

const (
	lastSyncKeyPrefix = "sync:last:"
	alertKey          = "alert:last"
)

// SyncState persists sync bookkeeping: per-domain last-sync timestamps
// and the last known emergency alert for offline restore.
type SyncState struct {
	db *badger.DB
}

// NewSyncState creates the sync bookkeeping store.
func NewSyncState(db *badger.DB) *SyncState {
	return &SyncState{db: db}
}

// SetLastSync records a successful sync for a domain.
func (s *SyncState) SetLastSync(domain string, at time.Time) error {
	raw, err := json.Marshal(at)
	if err != nil {
		return fmt.Errorf("marshal last sync: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastSyncKeyPrefix+domain), raw)
	})
	if err != nil {
		return fmt.Errorf("persist last sync for %s: %w", domain, err)
	}
	return nil
}

// LastSync returns the recorded timestamp for a domain, zero if none.
func (s *SyncState) LastSync(domain string) time.Time {
	var at time.Time
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastSyncKeyPrefix + domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &at)
		})
	})
	return at
}

// SetAlert persists the active emergency alert so an offline restart can
// restore it.
func (s *SyncState) SetAlert(alert *models.EmergencyAlert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(alertKey), raw)
	})
	if err != nil {
		return fmt.Errorf("persist alert: %w", err)
	}
	return nil
}

// Alert returns the stored alert, or nil when none is active. An alert
// past its own expiry is dropped on read.
func (s *SyncState) Alert() *models.EmergencyAlert {
	var alert models.EmergencyAlert
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alertKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &alert)
		})
	})
	if err != nil {
		return nil
	}

	if alert.Expired(time.Now()) {
		_ = s.ClearAlert()
		return nil
	}
	return &alert
}

// ClearAlert removes the stored alert.
func (s *SyncState) ClearAlert() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(alertKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear alert: %w", err)
	}
	return nil
}
