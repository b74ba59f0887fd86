// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package services adapts the agent's Start/Stop components to suture's
// Serve lifecycle.
package services

import (
	"context"
)

// StartStopper is the lifecycle shape shared by the sync orchestrator
// and the cache sweeper wrapper.
type StartStopper interface {
	Start(ctx context.Context)
	Stop()
}

// SyncService supervises the sync orchestrator: start its periodic
// loop, block on the context, stop cleanly.
type SyncService struct {
	orchestrator StartStopper
}

func NewSyncService(o StartStopper) *SyncService {
	return &SyncService{orchestrator: o}
}

// Serve implements suture.Service.
func (s *SyncService) Serve(ctx context.Context) error {
	s.orchestrator.Start(ctx)
	<-ctx.Done()
	s.orchestrator.Stop()
	return ctx.Err()
}

func (s *SyncService) String() string { return "sync-orchestrator" }
