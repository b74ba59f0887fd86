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

const (
	cmdlogKeyPrefix = "cmdlog:"
	cmdlogSeqKey    = "cmdlog-seq"
)

// ResponseLog is the bounded FIFO of command responses awaiting upstream
// delivery. Entries are appended after each command execution, listed
// into the next heartbeat, and removed only once that heartbeat succeeds,
// so a failed heartbeat loses nothing. Oldest entries are evicted first
// when the cap is exceeded.
type ResponseLog struct {
	db  *badger.DB
	cap int

	mu  sync.Mutex
	seq uint64
}

// NewResponseLog opens the response log with the given capacity.
func NewResponseLog(db *badger.DB, capacity int) (*ResponseLog, error) {
	l := &ResponseLog{db: db, cap: capacity}

	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cmdlogSeqKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &l.seq)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load response log sequence: %w", err)
	}

	return l, nil
}

func cmdlogKey(seq uint64) []byte {
	// Zero-padded so lexicographic key order is append order.
	return []byte(fmt.Sprintf("%s%020d", cmdlogKeyPrefix, seq))
}

// Append records one response, evicting the oldest entries beyond the cap.
func (l *ResponseLog) Append(resp models.CommandResponse) error {
	raw, err := json.Marshal(&resp)
	if err != nil {
		return fmt.Errorf("marshal command response: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	seqRaw, err := json.Marshal(l.seq)
	if err != nil {
		return fmt.Errorf("marshal sequence: %w", err)
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(cmdlogKey(l.seq), raw); err != nil {
			return err
		}
		return txn.Set([]byte(cmdlogSeqKey), seqRaw)
	})
	if err != nil {
		return fmt.Errorf("append command response: %w", err)
	}

	return l.truncateLocked()
}

// truncateLocked evicts the oldest entries until the log fits the cap.
func (l *ResponseLog) truncateLocked() error {
	var excess [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		count := 0
		p := []byte(cmdlogKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}

		if count <= l.cap {
			return nil
		}

		drop := count - l.cap
		for it.Seek(p); it.ValidForPrefix(p) && drop > 0; it.Next() {
			excess = append(excess, it.Item().KeyCopy(nil))
			drop--
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan response log: %w", err)
	}

	if len(excess) == 0 {
		return nil
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		for _, k := range excess {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("truncate response log: %w", err)
	}

	logging.Debug().Int("evicted", len(excess)).Msg("Response log truncated")
	return nil
}

// List returns all pending responses in append order without removing
// them. Call Ack with the returned count after upstream delivery succeeds.
func (l *ResponseLog) List() ([]models.CommandResponse, error) {
	var out []models.CommandResponse

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(cmdlogKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var resp models.CommandResponse
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &resp)
			})
			if err != nil {
				continue
			}
			out = append(out, resp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list response log: %w", err)
	}

	return out, nil
}

// Ack removes the n oldest responses, i.e. the prefix returned by the
// List call whose delivery just succeeded. Responses appended after that
// List stay queued.
func (l *ResponseLog) Ack(n int) error {
	if n <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(cmdlogKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p) && len(keys) < n; it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan response log: %w", err)
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack response log: %w", err)
	}
	return nil
}

// Len returns the number of pending responses.
func (l *ResponseLog) Len() int {
	count := 0
	_ = l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(cmdlogKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	return count
}
