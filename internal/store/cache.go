// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
)

const cacheKeyPrefix = "cache:"

// Entry is a cached item with its expiry metadata. Data is kept as raw
// JSON so the cache is agnostic to payload shape.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	StoredAt  time.Time       `json:"storedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is the durable TTL cache, partitioned by content type. Reads are
// served from Badger on every access; expiry is enforced lazily on read,
// with an optional periodic sweep. Persist failures on write are logged
// but not raised, so a full disk degrades to memory-of-one-write rather
// than taking the display down.
type Cache struct {
	db *badger.DB

	mu       sync.Mutex
	sweepRun bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// CacheStats is an observability snapshot. Collecting it does not mutate
// the store.
type CacheStats struct {
	ItemCount    int            `json:"itemCount"`
	ByType       map[string]int `json:"byType"`
	ExpiredCount int            `json:"expiredCount"`
}

// NewCache creates a TTL cache over the shared Badger instance.
func NewCache(db *badger.DB) *Cache {
	return &Cache{db: db}
}

func cacheKey(contentType models.ContentType, key string) []byte {
	return []byte(cacheKeyPrefix + string(contentType) + ":" + key)
}

// Store writes an entry with the given TTL, overwriting any previous
// value. A failure to persist is logged, not returned.
func (c *Cache) Store(contentType models.ContentType, key string, data json.RawMessage, ttl time.Duration) {
	now := time.Now()
	entry := Entry{
		Data:      data,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		logging.Error().Err(err).Str("type", string(contentType)).Str("key", key).Msg("Cache entry marshal failed")
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(contentType, key), raw)
	})
	if err != nil {
		// Soft-fail: the display keeps running on whatever is readable.
		logging.Warn().Err(err).Str("type", string(contentType)).Str("key", key).Msg("Cache persist failed")
	}
}

// Get returns the entry's data if present and fresh. An expired entry is
// deleted as a side effect and reported as absent.
func (c *Cache) Get(contentType models.ContentType, key string) (json.RawMessage, bool) {
	entry, ok := c.GetEntry(contentType, key)
	if !ok {
		metrics.CacheMisses.WithLabelValues(string(contentType)).Inc()
		return nil, false
	}

	if entry.Expired(time.Now()) {
		c.Remove(contentType, key)
		metrics.CacheMisses.WithLabelValues(string(contentType)).Inc()
		metrics.CacheEvictions.WithLabelValues(string(contentType)).Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues(string(contentType)).Inc()
	return entry.Data, true
}

// GetEntry returns the raw entry without enforcing expiry and without
// mutating the store. The HTTP client uses this for stale fallbacks when
// the network is down or an endpoint is in backoff.
func (c *Cache) GetEntry(contentType models.ContentType, key string) (*Entry, bool) {
	var entry Entry

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(contentType, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		logging.Warn().Err(err).Str("type", string(contentType)).Str("key", key).Msg("Cache read failed")
		return nil, false
	}

	return &entry, true
}

// Has reports whether a fresh entry exists. Shares Get's lazy eviction of
// expired entries.
func (c *Cache) Has(contentType models.ContentType, key string) bool {
	entry, ok := c.GetEntry(contentType, key)
	if !ok {
		return false
	}
	if entry.Expired(time.Now()) {
		c.Remove(contentType, key)
		metrics.CacheEvictions.WithLabelValues(string(contentType)).Inc()
		return false
	}
	return true
}

// Remove deletes one entry unconditionally.
func (c *Cache) Remove(contentType models.ContentType, key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cacheKey(contentType, key))
	})
	if err != nil {
		logging.Warn().Err(err).Str("type", string(contentType)).Str("key", key).Msg("Cache delete failed")
	}
}

// ClearType deletes every entry of one content type, leaving the other
// partitions untouched.
func (c *Cache) ClearType(contentType models.ContentType) error {
	return c.clearPrefix(cacheKeyPrefix + string(contentType) + ":")
}

// ClearAll deletes every cache entry across all types.
func (c *Cache) ClearAll() error {
	return c.clearPrefix(cacheKeyPrefix)
}

func (c *Cache) clearPrefix(prefix string) error {
	keys, err := c.collectKeys(prefix)
	if err != nil {
		return fmt.Errorf("collect keys for %q: %w", prefix, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear %q: %w", prefix, err)
	}
	return nil
}

func (c *Cache) collectKeys(prefix string) ([][]byte, error) {
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Stats walks the cache and reports counts per type plus how many entries
// are past their expiry. Read-only; no eviction happens here.
func (c *Cache) Stats() CacheStats {
	stats := CacheStats{ByType: make(map[string]int)}
	now := time.Now()

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(cacheKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), cacheKeyPrefix)
			typeName, _, found := strings.Cut(rest, ":")
			if !found {
				continue
			}

			stats.ItemCount++
			stats.ByType[typeName]++

			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.Expired(now) {
				stats.ExpiredCount++
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Cache stats collection failed")
	}

	return stats
}

// StartSweeper begins a periodic sweep that removes expired entries.
// Correctness does not depend on it; lazy eviction on read is sufficient.
// No-op if already running or interval is zero.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sweepRun {
		return
	}
	c.sweepRun = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}

// StopSweeper stops the background sweep and waits for it to finish.
func (c *Cache) StopSweeper() {
	c.mu.Lock()
	if !c.sweepRun {
		c.mu.Unlock()
		return
	}
	c.sweepRun = false
	stopCh := c.stopCh
	c.mu.Unlock()

	close(stopCh)
	c.wg.Wait()
}

// sweep removes every expired entry in one pass.
func (c *Cache) sweep() {
	now := time.Now()
	var expired [][]byte

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(cacheKeyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				continue
			}
			if entry.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Cache sweep scan failed")
		return
	}

	if len(expired) == 0 {
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for _, k := range expired {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Cache sweep delete failed")
		return
	}

	logging.Debug().Int("removed", len(expired)).Msg("Cache sweep completed")
}
