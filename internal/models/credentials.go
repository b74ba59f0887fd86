// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package models

// Credentials is the auth token pair handed to the agent by the pairing
// flow. MasjidID is optional; APIKey and ScreenID are what authenticate
// requests.
type Credentials struct {
	APIKey   string `json:"apiKey"`
	ScreenID string `json:"screenId"`
	MasjidID string `json:"masjidId,omitempty"`
}

// Authenticated reports whether the pair is usable. Both the key and the
// screen id must be present.
func (c Credentials) Authenticated() bool {
	return c.APIKey != "" && c.ScreenID != ""
}
