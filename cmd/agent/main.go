// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/client"
	"github.com/deenboard/display-agent/internal/command"
	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/diag"
	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/netstate"
	"github.com/deenboard/display-agent/internal/realtime"
	"github.com/deenboard/display-agent/internal/store"
	"github.com/deenboard/display-agent/internal/supervisor"
	"github.com/deenboard/display-agent/internal/supervisor/services"
	syncpkg "github.com/deenboard/display-agent/internal/sync"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (overrides CONFIG_PATH)")
	pairCode := flag.String("pair", "", "pairing code to register this screen, then exit")
	flag.Parse()

	if *configPath != "" {
		os.Setenv(config.ConfigPathEnvVar, *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().
		Str("version", version).
		Str("server", cfg.Server.BaseURL).
		Msg("Display agent starting")

	db, err := store.Open(store.Options{Dir: cfg.Cache.Dir, InMemory: cfg.Cache.InMemory})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing local store")
		}
	}()

	cache := store.NewCache(db)
	creds, err := store.NewCredentials(db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load credentials")
	}
	responseLog, err := store.NewResponseLog(db, cfg.Commands.ResponseLogCap)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open response log")
	}
	syncState := store.NewSyncState(db)

	tracker := netstate.New()
	httpClient := client.New(cfg.Server, cache, creds, tracker)

	// One-shot pairing mode.
	if *pairCode != "" {
		hostname, _ := os.Hostname()
		got, err := httpClient.Pair(context.Background(), *pairCode, hostname)
		if err != nil {
			logging.Fatal().Err(err).Msg("Pairing failed")
		}
		fmt.Printf("paired as screen %s\n", got.ScreenID)
		return
	}
	if !creds.Authenticated() {
		logging.Fatal().Msg("Not paired; run with -pair <code> first")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := realtime.New(cfg.Realtime, creds, tracker)
	orchestrator := syncpkg.New(cfg.Sync, cfg.Cache, httpClient, syncState, responseLog, creds)

	actions := newAgentActions(cache, creds, stateDir(cfg), cancel)
	actions.setOrchestrator(orchestrator)
	processor := command.NewProcessor(cfg.Commands, responseLog, actions)
	defer processor.Shutdown()

	// Wiring: both delivery paths feed the processor; responses flow
	// back over the socket and ride the next heartbeat; completed
	// commands nudge an immediate heartbeat.
	channel.OnCommand(func(cmd models.Command) {
		go processor.Handle(ctx, cmd)
	})
	channel.OnEvent(func(frame realtime.Frame) {
		orchestrator.HandleEvent(ctx, frame)
		if frame.Event == realtime.EventOrientation {
			applyOrientationEvent(ctx, actions, frame)
		}
	})
	orchestrator.SetCommandSink(func(ctx context.Context, cmd models.Command) {
		processor.Handle(ctx, cmd)
	})
	processor.SetResponseSink(func(resp models.CommandResponse) {
		if err := channel.AcknowledgeCommand(resp); err != nil {
			logging.Debug().Err(err).Msg("Realtime ack skipped, response rides next heartbeat")
		}
		if !resp.Success && resp.Error != "" {
			if err := channel.ReportError(resp.Error); err != nil {
				logging.Debug().Err(err).Msg("Error report skipped, socket down")
			}
		}
	})
	processor.SetHeartbeatNudge(func() {
		go orchestrator.Nudge(ctx)
	})

	telemetry := func() models.Telemetry {
		stats := cache.Stats()
		return models.Telemetry{
			UptimeSeconds:   int64(orchestrator.Uptime().Seconds()),
			AppVersion:      version,
			ConnectionState: string(channel.State()),
			CacheItems:      stats.ItemCount,
			Orientation:     actions.Orientation(),
		}
	}
	channel.SetTelemetryProvider(telemetry)
	orchestrator.SetTelemetryProvider(telemetry)

	// Every (re)connect announces current status and asks the server to
	// push anything the screen missed while the socket was down.
	channel.OnConnectionChange(func(state realtime.ConnectionState) {
		if state != realtime.StateConnected {
			return
		}
		go func() {
			if err := channel.SendStatus(telemetry()); err != nil {
				logging.Debug().Err(err).Msg("Status push skipped")
			}
			if err := channel.RequestSync(); err != nil {
				logging.Debug().Err(err).Msg("Sync request skipped")
			}
		}()
	})

	// Revoked credentials drop the socket; the supervisor keeps the
	// service cycling until the screen is re-paired.
	creds.OnCleared(func() {
		channel.Disconnect()
	})

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStorageService(services.NewSweeperService(cache, cfg.Cache.SweepInterval))
	tree.AddTransportService(services.NewRealtimeService(channel))
	tree.AddTransportService(services.NewSyncService(orchestrator))
	if cfg.Diagnostics.Enabled {
		source := &statusSource{
			channel:      channel,
			net:          tracker,
			client:       httpClient,
			cache:        cache,
			orchestrator: orchestrator,
		}
		tree.AddDiagnosticsService(services.NewDiagService(diag.New(cfg.Diagnostics.Addr, source)))
	}

	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logging.Error().Err(err).Msg("Supervisor tree failed")
			os.Exit(1)
		}
	}
	logging.Info().Msg("Display agent stopped")
}

// stateDir is where side-effect files (settings, orientation, message,
// screenshots) live. Falls back to the working directory for in-memory
// runs.
func stateDir(cfg *config.Config) string {
	if cfg.Cache.InMemory || cfg.Cache.Dir == "" {
		return "."
	}
	return cfg.Cache.Dir
}

// applyOrientationEvent handles server-pushed orientation changes that
// arrive as plain events rather than commands.
func applyOrientationEvent(ctx context.Context, actions *agentActions, frame realtime.Frame) {
	cmd, ok := orientationAsCommand(frame)
	if !ok {
		logging.Warn().Msg("Dropping malformed orientation event")
		return
	}
	if err := actions.SetOrientation(ctx, cmd); err != nil {
		logging.Error().Err(err).Msg("Failed to apply orientation")
	}
}

func orientationAsCommand(frame realtime.Frame) (string, bool) {
	var payload struct {
		Orientation string `json:"orientation"`
	}
	if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.Orientation == "" {
		return "", false
	}
	return payload.Orientation, true
}
