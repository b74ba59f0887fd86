// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package services

import (
	"context"
)

// Server is the blocking-serve shape of the diagnostics listener.
type Server interface {
	Serve(ctx context.Context) error
}

// DiagService supervises the diagnostics HTTP listener.
type DiagService struct {
	server Server
}

func NewDiagService(srv Server) *DiagService {
	return &DiagService{server: srv}
}

// Serve implements suture.Service.
func (s *DiagService) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

func (s *DiagService) String() string { return "diagnostics" }
