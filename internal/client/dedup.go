// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// inflight is one shared request execution. Followers block on done and
// read the same result the leader produced.
type inflight struct {
	done chan struct{}
	data []byte
	err  error
}

// deduper coalesces concurrent fetches of the same (endpoint, options)
// tuple into one network call. A settled entry lingers for a short grace
// period to absorb near-simultaneous bursts, then is dropped so later
// callers fetch fresh.
type deduper struct {
	grace time.Duration

	mu      sync.Mutex
	entries map[string]*inflight
}

func newDeduper(grace time.Duration) *deduper {
	return &deduper{
		grace:   grace,
		entries: make(map[string]*inflight),
	}
}

// dedupKey derives the coalescing key from the endpoint and its options.
func dedupKey(endpoint string, opts Options) string {
	raw, err := json.Marshal(struct {
		Method string              `json:"m"`
		Query  map[string][]string `json:"q,omitempty"`
		Body   any                 `json:"b,omitempty"`
	}{
		Method: opts.Method,
		Query:  opts.Query,
		Body:   opts.Body,
	})
	if err != nil {
		return endpoint
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", endpoint, sum[:8])
}

// do executes fn once per key. The second return reports whether the
// result was shared from an already in-flight call.
func (d *deduper) do(ctx context.Context, key string, fn func() ([]byte, error)) ([]byte, bool, error) {
	d.mu.Lock()
	if entry, ok := d.entries[key]; ok {
		d.mu.Unlock()
		select {
		case <-entry.done:
			return entry.data, true, entry.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	entry := &inflight{done: make(chan struct{})}
	d.entries[key] = entry
	d.mu.Unlock()

	entry.data, entry.err = fn()
	close(entry.done)

	// Keep the settled entry around briefly, then clear it.
	time.AfterFunc(d.grace, func() {
		d.mu.Lock()
		if d.entries[key] == entry {
			delete(d.entries, key)
		}
		d.mu.Unlock()
	})

	return entry.data, false, entry.err
}
