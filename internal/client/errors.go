// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers. Raw transport errors never escape
// the client; they are wrapped into one of these or absorbed by a cache
// fallback.
var (
	// ErrNotAuthenticated means no usable credential pair is present.
	// Local condition; no network attempt is made.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthenticationFailed means the server rejected the credentials.
	// The credential store has already been cleared when this surfaces.
	ErrAuthenticationFailed = errors.New("authentication rejected")

	// ErrTemporarilyUnavailable means the endpoint is in backoff and no
	// cached value exists to fall back on.
	ErrTemporarilyUnavailable = errors.New("endpoint temporarily unavailable")

	// ErrOffline means the network is unreachable and no cached value
	// exists.
	ErrOffline = errors.New("offline and no cached data")

	// ErrStructural means the response body was not usable JSON (HTML
	// error page, malformed payload). Never retried, never cached.
	ErrStructural = errors.New("structural response error")
)

// transientError marks a failure as retryable (timeouts, 429, 5xx).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// transient wraps err as retryable.
func transient(err error) error {
	return &transientError{err: err}
}

// isTransient reports whether the failure should be retried.
func isTransient(err error) bool {
	var te *transientError
	var tr *transportError
	return errors.As(err, &te) || errors.As(err, &tr)
}

// transportError marks a network-level failure (dial, timeout, reset).
// Retryable, and the trigger for flipping the online tracker off.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// httpStatusError carries a non-2xx status for logging and retry routing.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.status)
}
