// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
)

// EndpointClass selects the breaker cool-down for an endpoint. Content
// endpoints back off for minutes; the heartbeat recovers in one so
// liveness reporting resumes quickly.
type EndpointClass string

const (
	ClassContent   EndpointClass = "content"
	ClassHeartbeat EndpointClass = "heartbeat"
)

// breakerTripThreshold is the consecutive-failure count that opens an
// endpoint's breaker.
const breakerTripThreshold = 3

// breakerRegistry holds one circuit breaker per logical endpoint. While a
// breaker is open the endpoint must not be called; the client falls back
// to cache instead.
type breakerRegistry struct {
	contentCooldown   time.Duration
	heartbeatCooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

func newBreakerRegistry(contentCooldown, heartbeatCooldown time.Duration) *breakerRegistry {
	return &breakerRegistry{
		contentCooldown:   contentCooldown,
		heartbeatCooldown: heartbeatCooldown,
		breakers:          make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// get returns the breaker for an endpoint, creating it on first use.
func (r *breakerRegistry) get(endpoint string, class EndpointClass) *gobreaker.CircuitBreaker[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[endpoint]; ok {
		return cb
	}

	cooldown := r.contentCooldown
	if class == ClassHeartbeat {
		cooldown = r.heartbeatCooldown
	}

	metrics.BreakerState.WithLabelValues(endpoint).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1, // one probe when half-open
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Warn().Str("endpoint", name).Str("from", fromStr).Str("to", toStr).Msg("Endpoint breaker transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	r.breakers[endpoint] = cb
	return cb
}

// States snapshots every known breaker for the diagnostics endpoint.
func (r *breakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = stateToString(cb.State())
	}
	return out
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
