// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package metrics exposes Prometheus instrumentation for the agent's
// resilience machinery: cache efficiency, fetch retries and breaker state,
// realtime channel health, command execution, and sync passes. Scraped via
// the loopback diagnostics listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_hits_total",
			Help: "Cache reads served from a fresh entry",
		},
		[]string{"content_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_misses_total",
			Help: "Cache reads that found no usable entry",
		},
		[]string{"content_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_evictions_total",
			Help: "Entries removed lazily on read, by sweep, or explicitly",
		},
		[]string{"content_type"},
	)

	CacheStaleFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_cache_stale_fallbacks_total",
			Help: "Fetches answered with an expired entry while offline or backed off",
		},
		[]string{"content_type"},
	)

	// HTTP sync client metrics
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_fetch_requests_total",
			Help: "Logical fetches by endpoint class and outcome",
		},
		[]string{"class", "outcome"}, // outcome: success, cached, deduped, failure, rejected
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_fetch_retries_total",
			Help: "Retry attempts on transient failures",
		},
		[]string{"class"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_breaker_state",
			Help: "Per-endpoint breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"endpoint"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_breaker_transitions_total",
			Help: "Breaker state transitions",
		},
		[]string{"endpoint", "from", "to"},
	)

	// Realtime channel metrics
	RealtimeState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_realtime_state",
			Help: "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=error)",
		},
	)

	RealtimeReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_realtime_reconnects_total",
			Help: "Reconnection attempts after a dropped connection",
		},
	)

	HeartbeatsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_heartbeats_sent_total",
			Help: "Heartbeats emitted by transport and cadence",
		},
		[]string{"transport", "cadence"}, // transport: websocket, http; cadence: normal, fast, immediate
	)

	// Command processor metrics
	CommandsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_commands_received_total",
			Help: "Commands received by type and disposition",
		},
		[]string{"type", "disposition"}, // disposition: executed, duplicate, queued, invalid
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_command_duration_seconds",
			Help:    "Command handler execution time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	// Sync orchestrator metrics
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_sync_runs_total",
			Help: "Full sync passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // trigger: periodic, manual, coalesced; outcome: success, partial, failure
	)

	SyncDomainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_sync_domain_duration_seconds",
			Help:    "Per-domain sync duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)

	SyncQueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_sync_queue_rejections_total",
			Help: "SyncAll callers rejected because the follow-up queue was full",
		},
	)

	// Network state
	Online = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_online",
			Help: "Last observed network reachability (1=online, 0=offline)",
		},
	)
)
