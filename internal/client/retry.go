// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"context"
	"math/rand"
	"time"
)

// retryPolicy controls the bounded exponential backoff used for
// transient failures. Non-transient errors abort the loop immediately.
type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// backoffDelay returns the delay before retry number n (1-based) with
// symmetric jitter of 15-30% so a fleet of kiosks does not retry in
// lockstep after a shared outage.
func (p retryPolicy) backoffDelay(n int) time.Duration {
	delay := p.baseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			delay = p.maxDelay
			break
		}
	}
	jit := 0.15 + 0.15*rand.Float64()
	if rand.Intn(2) == 0 {
		jit = -jit
	}
	jittered := time.Duration(float64(delay) * (1 + jit))
	if jittered < 0 {
		jittered = delay
	}
	return jittered
}

// run invokes fn up to attempts times, sleeping between transient
// failures. It returns the last error when every attempt fails.
func (p retryPolicy) run(ctx context.Context, onRetry func(attempt int, err error), fn func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		data, err := fn()
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
		if attempt == p.attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-time.After(p.backoffDelay(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
