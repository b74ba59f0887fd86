// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package models

import "time"

// ContentType partitions the durable cache. Clearing one type can never
// touch entries of another.
type ContentType string

const (
	ContentScreen        ContentType = "content"
	ContentPrayerTimes   ContentType = "prayer-times"
	ContentEvents        ContentType = "events"
	ContentSchedule      ContentType = "schedule"
	ContentAnnouncements ContentType = "announcements"
	ContentImages        ContentType = "images"
)

// ContentTypes lists every cache partition, for stats and clear-all sweeps.
var ContentTypes = []ContentType{
	ContentScreen,
	ContentPrayerTimes,
	ContentEvents,
	ContentSchedule,
	ContentAnnouncements,
	ContentImages,
}

// PrayerTimes is one day of prayer times as served by the content API.
// The agent treats the values as opaque display strings; astronomical
// calculation happens server-side.
type PrayerTimes struct {
	Date    string `json:"date"`
	Fajr    string `json:"fajr"`
	Sunrise string `json:"sunrise"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
	Jumuah  string `json:"jumuah,omitempty"`
}

// ScreenContent is the layout-independent content bundle for the display:
// slides, notices, and per-screen settings.
type ScreenContent struct {
	ScreenID    string         `json:"screenId"`
	MasjidName  string         `json:"masjidName"`
	Orientation string         `json:"orientation"`
	Slides      []Slide        `json:"slides"`
	Settings    map[string]any `json:"settings,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Slide is one rotating content item.
type Slide struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Duration int    `json:"durationSeconds,omitempty"`
}

// Event is a masjid event (class, lecture, iftar, ...).
type Event struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt,omitempty"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// ScheduleDay is one day of the recurring weekly schedule.
type ScheduleDay struct {
	Weekday string  `json:"weekday"`
	Items   []Event `json:"items"`
}

// Announcement is a short-lived notice shown between slides.
type Announcement struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Priority  int       `json:"priority"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// EmergencyAlert overrides all display content until cleared. The last
// known alert is persisted so an offline restart can restore it.
type EmergencyAlert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the alert's own expiry has passed. Alerts with
// no expiry stay active until an explicit clear.
func (a *EmergencyAlert) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
