// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
)

const credKey = "cred:pair"

// Historical key names from earlier agent generations. Migrated once at
// open; reads never probe them.
var legacyCredKeys = []string{
	"credentials:apiKey",
	"credentials:screenId",
	"masjid_credentials",
}

// Credentials holds the auth token pair, durable in Badger and mirrored
// in memory. The mirror is loaded once at construction; all mutation goes
// through SetPair/Clear so no reader ever sees a torn state.
type Credentials struct {
	db *badger.DB

	mu        sync.RWMutex
	current   models.Credentials
	onCleared []func()
}

// NewCredentials loads the credential pair from durable storage, running
// the one-time legacy-key migration first.
func NewCredentials(db *badger.DB) (*Credentials, error) {
	s := &Credentials{db: db}

	if err := s.migrateLegacyKeys(); err != nil {
		// Migration failure is not fatal; the device re-pairs.
		logging.Warn().Err(err).Msg("Legacy credential migration failed")
	}

	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s.current)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	return s, nil
}

// migrateLegacyKeys consolidates the historical split key layout into the
// canonical cred:pair record, then deletes the old keys. Runs once; a
// device that already has the canonical key skips the read entirely.
func (s *Credentials) migrateLegacyKeys() error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(credKey)); err == nil {
			return s.deleteLegacy(txn)
		}

		var creds models.Credentials
		if item, err := txn.Get([]byte("credentials:apiKey")); err == nil {
			_ = item.Value(func(val []byte) error {
				creds.APIKey = string(val)
				return nil
			})
		}
		if item, err := txn.Get([]byte("credentials:screenId")); err == nil {
			_ = item.Value(func(val []byte) error {
				creds.ScreenID = string(val)
				return nil
			})
		}
		if item, err := txn.Get([]byte("masjid_credentials")); err == nil {
			_ = item.Value(func(val []byte) error {
				// Older builds stored the full pair as JSON under this key.
				var legacy models.Credentials
				if jerr := json.Unmarshal(val, &legacy); jerr == nil {
					if creds.APIKey == "" {
						creds.APIKey = legacy.APIKey
					}
					if creds.ScreenID == "" {
						creds.ScreenID = legacy.ScreenID
					}
					creds.MasjidID = legacy.MasjidID
				}
				return nil
			})
		}

		if creds.Authenticated() {
			raw, err := json.Marshal(&creds)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(credKey), raw); err != nil {
				return err
			}
			logging.Info().Msg("Migrated legacy credential keys to canonical schema")
		}

		return s.deleteLegacy(txn)
	})
}

func (s *Credentials) deleteLegacy(txn *badger.Txn) error {
	for _, k := range legacyCredKeys {
		if err := txn.Delete([]byte(k)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

// Get returns the current credential pair.
func (s *Credentials) Get() models.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Authenticated reports whether a usable pair is present.
func (s *Credentials) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated()
}

// SetPair stores a new credential pair, typically handed over by the
// pairing flow. The pair is persisted before the memory mirror updates.
func (s *Credentials) SetPair(creds models.Credentials) error {
	if !creds.Authenticated() {
		return fmt.Errorf("credential pair incomplete: apiKey and screenId are required")
	}

	raw, err := json.Marshal(&creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(credKey), raw)
	})
	if err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	s.mu.Lock()
	s.current = creds
	s.mu.Unlock()

	logging.Info().Str("screen_id", creds.ScreenID).Msg("Credentials stored")
	return nil
}

// Clear destroys the pair, durably and in memory, then notifies
// subscribers. Called on explicit reset and on an authentication-rejected
// response from the server.
func (s *Credentials) Clear() error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(credKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	s.mu.Lock()
	s.current = models.Credentials{}
	subs := make([]func(), len(s.onCleared))
	copy(subs, s.onCleared)
	s.mu.Unlock()

	logging.Warn().Msg("Credentials cleared")
	for _, fn := range subs {
		fn()
	}
	return nil
}

// OnCleared registers a callback invoked after the pair is destroyed.
// Returns an unsubscribe func.
func (s *Credentials) OnCleared(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onCleared = append(s.onCleared, fn)
	idx := len(s.onCleared) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.onCleared) {
			s.onCleared[idx] = func() {}
		}
	}
}
