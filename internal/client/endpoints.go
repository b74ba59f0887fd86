// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package client

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/models"
)

// Typed wrappers over Fetch for the content domains the kiosk renders.
// Each wrapper pins the endpoint, the cache content type, and decodes
// into the domain model while preserving provenance flags.

// ContentResult pairs decoded content with its fetch provenance.
type ContentResult[T any] struct {
	Value     T
	FromCache bool
	Stale     bool
	FetchedAt time.Time
}

func decode[T any](res *Result) (*ContentResult[T], error) {
	var v T
	if err := json.Unmarshal(res.Data, &v); err != nil {
		return nil, ErrStructural
	}
	return &ContentResult[T]{
		Value:     v,
		FromCache: res.FromCache,
		Stale:     res.Stale || res.OfflineFallback,
		FetchedAt: res.FetchedAt,
	}, nil
}

func (c *Client) FetchContent(ctx context.Context, force bool, ttl time.Duration) (*ContentResult[models.ScreenContent], error) {
	res, err := c.Fetch(ctx, "/api/screen/content", Options{
		ContentType:  models.ContentScreen,
		ForceRefresh: force,
	}, ttl)
	if err != nil {
		return nil, err
	}
	return decode[models.ScreenContent](res)
}

func (c *Client) FetchPrayerTimes(ctx context.Context, force bool, ttl time.Duration) (*ContentResult[models.PrayerTimes], error) {
	res, err := c.Fetch(ctx, "/api/screen/prayer-times", Options{
		ContentType:  models.ContentPrayerTimes,
		ForceRefresh: force,
	}, ttl)
	if err != nil {
		return nil, err
	}
	return decode[models.PrayerTimes](res)
}

func (c *Client) FetchEvents(ctx context.Context, force bool, ttl time.Duration) (*ContentResult[[]models.Event], error) {
	res, err := c.Fetch(ctx, "/api/screen/events", Options{
		ContentType:  models.ContentEvents,
		ForceRefresh: force,
	}, ttl)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Event](res)
}

func (c *Client) FetchSchedule(ctx context.Context, force bool, ttl time.Duration) (*ContentResult[[]models.ScheduleDay], error) {
	res, err := c.Fetch(ctx, "/api/screen/schedule", Options{
		ContentType:  models.ContentSchedule,
		ForceRefresh: force,
	}, ttl)
	if err != nil {
		return nil, err
	}
	return decode[[]models.ScheduleDay](res)
}

// SendHeartbeat posts telemetry and drained command responses. Never
// cached; uses the heartbeat breaker class so a failing heartbeat
// endpoint recovers on its own fast cool-down.
func (c *Client) SendHeartbeat(ctx context.Context, hb models.HeartbeatRequest) (*models.HeartbeatResponse, error) {
	res, err := c.Fetch(ctx, "/api/screen/heartbeat", Options{
		Method: "POST",
		Body:   hb,
		Class:  ClassHeartbeat,
	}, 0)
	if err != nil {
		return nil, err
	}
	var out models.HeartbeatResponse
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return nil, ErrStructural
	}
	return &out, nil
}
