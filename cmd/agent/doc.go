// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// The agent keeps a masjid kiosk display populated and remotely
// manageable: it syncs content, prayer times, events, and schedules
// through a resilient HTTP client backed by a durable on-disk cache,
// holds a WebSocket channel open for push updates and remote commands,
// and executes administrative commands exactly once with acknowledgement
// back upstream.
//
// Run with -pair <code> once to register the screen, then start the
// agent under a service manager. Configuration comes from a YAML file
// (see -config / CONFIG_PATH) layered with DISPLAY_* environment
// variables.
package main
