// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLifecycle struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (f *fakeLifecycle) Start(ctx context.Context) { f.started.Store(true) }
func (f *fakeLifecycle) Stop()                     { f.stopped.Store(true) }

func TestSyncServiceLifecycle(t *testing.T) {
	lc := &fakeLifecycle{}
	svc := NewSyncService(lc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !lc.started.Load() {
		if time.Now().After(deadline) {
			t.Fatal("orchestrator never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
	if !lc.stopped.Load() {
		t.Error("orchestrator never stopped")
	}
}

type fakeServer struct {
	err error
}

func (f *fakeServer) Serve(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestDiagServicePropagatesError(t *testing.T) {
	want := errors.New("bind failed")
	svc := NewDiagService(&fakeServer{err: want})
	if err := svc.Serve(context.Background()); !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestServiceNames(t *testing.T) {
	if got := (&SyncService{}).String(); got != "sync-orchestrator" {
		t.Errorf("sync name = %q", got)
	}
	if got := (&DiagService{}).String(); got != "diagnostics" {
		t.Errorf("diag name = %q", got)
	}
	if got := (&RealtimeService{}).String(); got != "realtime-channel" {
		t.Errorf("realtime name = %q", got)
	}
	if got := (&SweeperService{}).String(); got != "cache-sweeper" {
		t.Errorf("sweeper name = %q", got)
	}
}
