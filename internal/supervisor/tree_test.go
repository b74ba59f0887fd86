// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deenboard/display-agent/internal/logging"
)

// blockingService runs until canceled and records that it started.
type blockingService struct {
	started chan struct{}
}

func (s *blockingService) Serve(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeRunsServicesInEveryLayer(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	storage := &blockingService{started: make(chan struct{}, 1)}
	transport := &blockingService{started: make(chan struct{}, 1)}
	diag := &blockingService{started: make(chan struct{}, 1)}
	tree.AddStorageService(storage)
	tree.AddTransportService(transport)
	tree.AddDiagnosticsService(diag)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for name, ch := range map[string]chan struct{}{
		"storage":     storage.started,
		"transport":   transport.started,
		"diagnostics": diag.started,
	} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s service never started", name)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

func TestTreeConfigDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", tree.config.ShutdownTimeout)
	}
}
