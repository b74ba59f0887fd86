// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package services

import (
	"context"
	"time"

	"github.com/deenboard/display-agent/internal/store"
)

// SweeperService supervises the cache's expired-entry sweeper.
type SweeperService struct {
	cache    *store.Cache
	interval time.Duration
}

func NewSweeperService(cache *store.Cache, interval time.Duration) *SweeperService {
	return &SweeperService{cache: cache, interval: interval}
}

// Serve implements suture.Service.
func (s *SweeperService) Serve(ctx context.Context) error {
	s.cache.StartSweeper(s.interval)
	<-ctx.Done()
	s.cache.StopSweeper()
	return ctx.Err()
}

func (s *SweeperService) String() string { return "cache-sweeper" }
