// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
)

type pairRequest struct {
	PairingCode string `json:"pairingCode"`
	DeviceName  string `json:"deviceName,omitempty"`
}

type pairResponse struct {
	APIKey   string `json:"apiKey"`
	ScreenID string `json:"screenId"`
	MasjidID string `json:"masjidId,omitempty"`
}

// Pair exchanges a short-lived pairing code for a credential pair and
// persists it. The only client call that runs unauthenticated; it
// bypasses the cache and breaker layers entirely.
func (c *Client) Pair(ctx context.Context, code, deviceName string) (models.Credentials, error) {
	if code == "" {
		return models.Credentials{}, fmt.Errorf("pairing code required")
	}

	u, err := url.JoinPath(c.cfg.BaseURL, "/api/screen/pair")
	if err != nil {
		return models.Credentials{}, err
	}
	body, err := json.Marshal(pairRequest{PairingCode: code, DeviceName: deviceName})
	if err != nil {
		return models.Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("pairing request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Credentials{}, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized:
		return models.Credentials{}, fmt.Errorf("pairing code rejected")
	case resp.StatusCode >= 400:
		return models.Credentials{}, &httpStatusError{status: resp.StatusCode}
	}

	var pr pairResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		return models.Credentials{}, ErrStructural
	}
	creds := models.Credentials{APIKey: pr.APIKey, ScreenID: pr.ScreenID, MasjidID: pr.MasjidID}
	if !creds.Authenticated() {
		return models.Credentials{}, fmt.Errorf("pairing response missing credentials")
	}

	if err := c.creds.SetPair(creds); err != nil {
		return models.Credentials{}, fmt.Errorf("persist credentials: %w", err)
	}
	logging.Info().Str("screenId", creds.ScreenID).Msg("Screen paired")
	return creds, nil
}
