// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package client implements the resilient HTTP layer between the kiosk
// and the Deenboard server. Every fetch flows through the same pipeline:
// credential check, offline cache fallback, fresh-cache short circuit,
// request coalescing, per-endpoint circuit breaking, bounded retries
// with jittered backoff, and write-through caching of good responses.
package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/netstate"
	"github.com/deenboard/display-agent/internal/store"
)

// Options shape a single fetch. Zero value means GET with no query,
// cache under the endpoint path, content class.
type Options struct {
	Method       string
	Query        map[string][]string
	Body         any
	ForceRefresh bool
	ContentType  models.ContentType
	Class        EndpointClass
}

// Result carries the response body plus provenance flags so callers can
// tell cached, stale, and offline-served data apart from live data.
type Result struct {
	Data            json.RawMessage
	FromCache       bool
	OfflineFallback bool
	Stale           bool
	FetchedAt       time.Time
}

// Client is the shared HTTP front door. Safe for concurrent use.
type Client struct {
	cfg      config.ServerConfig
	http     *http.Client
	cache    *store.Cache
	creds    *store.Credentials
	net      *netstate.Tracker
	breakers *breakerRegistry
	dedup    *deduper
	retry    retryPolicy
}

func New(cfg config.ServerConfig, cache *store.Cache, creds *store.Credentials, net *netstate.Tracker) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:    cache,
		creds:    creds,
		net:      net,
		breakers: newBreakerRegistry(cfg.ContentCooldown, cfg.HeartbeatCooldown),
		dedup:    newDeduper(cfg.DedupWindow),
		retry: retryPolicy{
			attempts:  cfg.RetryAttempts,
			baseDelay: cfg.RetryBaseDelay,
			maxDelay:  cfg.RetryMaxDelay,
		},
	}
}

// BreakerStates exposes per-endpoint breaker states for diagnostics.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.States()
}

// Fetch retrieves endpoint through the full resilience pipeline. ttl
// controls both the fresh-cache short circuit and the stored entry's
// lifetime; ttl of zero disables caching for this call.
func (c *Client) Fetch(ctx context.Context, endpoint string, opts Options, ttl time.Duration) (*Result, error) {
	creds := c.creds.Get()
	if !creds.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	cacheKey := strings.TrimPrefix(endpoint, "/")
	contentType := opts.ContentType
	if contentType == "" {
		contentType = models.ContentType(cacheKey)
	}
	class := opts.Class
	if class == "" {
		class = ClassContent
	}
	cacheable := ttl > 0 && class == ClassContent

	// Offline: serve whatever we have, even expired, rather than burn a
	// doomed network attempt.
	if !c.net.Online() {
		if cacheable {
			if entry, ok := c.cache.GetEntry(contentType, cacheKey); ok {
				metrics.CacheHits.WithLabelValues(string(contentType)).Inc()
				metrics.FetchRequests.WithLabelValues(string(class), "offline_fallback").Inc()
				return &Result{
					Data:            entry.Data,
					FromCache:       true,
					OfflineFallback: true,
					Stale:           entry.Expired(time.Now()),
					FetchedAt:       entry.StoredAt,
				}, nil
			}
		}
		metrics.FetchRequests.WithLabelValues(string(class), "offline").Inc()
		return nil, ErrOffline
	}

	// Fresh cache short-circuits the network entirely.
	if cacheable && !opts.ForceRefresh {
		if data, ok := c.cache.Get(contentType, cacheKey); ok {
			metrics.FetchRequests.WithLabelValues(string(class), "cache").Inc()
			return &Result{Data: data, FromCache: true, FetchedAt: time.Now()}, nil
		}
	}

	breaker := c.breakers.get(endpoint, class)
	key := dedupKey(endpoint, opts)

	data, shared, err := c.dedup.do(ctx, key, func() ([]byte, error) {
		return breaker.Execute(func() ([]byte, error) {
			return c.retry.run(ctx, func(attempt int, err error) {
				metrics.FetchRetries.WithLabelValues(string(class)).Inc()
				logging.Debug().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Err(err).
					Msg("Retrying request")
			}, func() ([]byte, error) {
				return c.doRequest(ctx, endpoint, opts, creds)
			})
		})
	})
	if err == nil {
		c.net.MarkOnline()
		if cacheable {
			c.cache.Store(contentType, cacheKey, data, ttl)
		}
		outcome := "ok"
		if shared {
			outcome = "coalesced"
		}
		metrics.FetchRequests.WithLabelValues(string(class), outcome).Inc()
		return &Result{Data: data, FetchedAt: time.Now()}, nil
	}

	// Authentication failures must surface; stale data would mask a
	// revoked screen.
	if errors.Is(err, ErrAuthenticationFailed) {
		metrics.FetchRequests.WithLabelValues(string(class), "auth_failed").Inc()
		return nil, err
	}

	var netErr *transportError
	if errors.As(err, &netErr) {
		c.net.MarkOffline()
	}

	if cacheable {
		if entry, ok := c.cache.GetEntry(contentType, cacheKey); ok {
			metrics.CacheStaleFallbacks.WithLabelValues(string(contentType)).Inc()
			metrics.FetchRequests.WithLabelValues(string(class), "stale_fallback").Inc()
			logging.Warn().
				Str("endpoint", endpoint).
				Err(err).
				Msg("Serving stale cached data after fetch failure")
			return &Result{
				Data:      entry.Data,
				FromCache: true,
				Stale:     true,
				FetchedAt: entry.StoredAt,
			}, nil
		}
	}

	metrics.FetchRequests.WithLabelValues(string(class), "error").Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrTemporarilyUnavailable
	}
	return nil, err
}

// doRequest performs one HTTP exchange and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, endpoint string, opts Options, creds models.Credentials) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.JoinPath(c.cfg.BaseURL, endpoint)
	if err != nil {
		return nil, err
	}
	if len(opts.Query) > 0 {
		q := url.Values(opts.Query)
		u = u + "?" + q.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("X-Screen-ID", creds.ScreenID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Credentials were revoked server-side. Clearing drops the kiosk
		// back to the pairing screen.
		if clearErr := c.creds.Clear(); clearErr != nil {
			logging.Error().Err(clearErr).Msg("Failed to clear revoked credentials")
		}
		return nil, ErrAuthenticationFailed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, transient(&httpStatusError{status: resp.StatusCode})
	case resp.StatusCode >= 400:
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	// Captive portals and misrouted proxies answer with HTML. Never let
	// that reach the cache or the renderer.
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, ErrStructural
	}

	return data, nil
}
