// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package store provides the agent's durable local state on BadgerDB:
// the per-content-type TTL cache, the credential pair, the pending
// command-response log, and sync bookkeeping (last-sync timestamps, the
// last known emergency alert).
//
// Canonical key schema (one schema, no legacy-name probing on reads;
// historical credential keys are migrated once at open):
//
//	cache:<type>:<key>   TTL cache entries
//	cred:pair            credential pair
//	cmdlog:<seq>         pending command responses (zero-padded sequence)
//	cmdlog-seq           response log sequence counter
//	sync:last:<domain>   last successful sync per domain
//	alert:last           last known emergency alert
package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Options configures the underlying BadgerDB instance.
type Options struct {
	// Dir is the on-disk directory. Ignored when InMemory is set.
	Dir string

	// InMemory selects Badger's in-memory mode; used by tests and by
	// kiosks with no writable storage.
	InMemory bool
}

// Open opens the BadgerDB instance backing all stores. Badger's own
// logger is silenced; the stores log through internal/logging instead.
func Open(opts Options) (*badger.DB, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Dir, err)
	}
	return db, nil
}

// OpenInMemory is a test convenience for an ephemeral instance.
func OpenInMemory() (*badger.DB, error) {
	return Open(Options{InMemory: true})
}
