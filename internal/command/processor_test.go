// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/store"
)

// recordingActions counts every platform call for assertions.
type recordingActions struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
}

func newRecordingActions() *recordingActions {
	return &recordingActions{calls: make(map[string]int), errs: make(map[string]error)}
}

func (a *recordingActions) record(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[name]++
	return a.errs[name]
}

func (a *recordingActions) count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

func (a *recordingActions) fail(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[name] = err
}

func (a *recordingActions) Restart(ctx context.Context) error      { return a.record("restart") }
func (a *recordingActions) Reboot(ctx context.Context) error       { return a.record("reboot") }
func (a *recordingActions) FactoryReset(ctx context.Context) error { return a.record("factory-reset") }
func (a *recordingActions) CaptureScreenshot(ctx context.Context) (string, error) {
	return "/tmp/shot.png", a.record("screenshot")
}
func (a *recordingActions) SetOrientation(ctx context.Context, o string) error {
	return a.record("orientation:" + o)
}
func (a *recordingActions) DisplayMessage(ctx context.Context, msg string, d time.Duration) error {
	return a.record("message:" + msg)
}
func (a *recordingActions) ApplySettings(ctx context.Context, s json.RawMessage) error {
	return a.record("settings")
}
func (a *recordingActions) ReloadContent(ctx context.Context) error { return a.record("reload") }
func (a *recordingActions) RefreshPrayerTimes(ctx context.Context) error {
	return a.record("refresh-prayer")
}
func (a *recordingActions) ClearCache(ctx context.Context, t models.ContentType) error {
	return a.record("clear-cache")
}

func testProcessor(t *testing.T, mutate func(*config.CommandsConfig)) (*Processor, *recordingActions, *store.ResponseLog) {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, err := store.NewResponseLog(db, 50)
	if err != nil {
		t.Fatalf("response log: %v", err)
	}

	cfg := config.CommandsConfig{
		DedupWindow:         time.Minute,
		TypeCooldown:        50 * time.Millisecond,
		ResponseLogCap:      50,
		DisruptiveCountdown: 30 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	actions := newRecordingActions()
	p := NewProcessor(cfg, log, actions)
	t.Cleanup(p.Shutdown)
	return p, actions, log
}

func cmd(id string, t models.CommandType, payload string) models.Command {
	c := models.Command{CommandID: id, Type: t, ReceivedAt: time.Now()}
	if payload != "" {
		c.Payload = json.RawMessage(payload)
	}
	return c
}

func TestHandleExecutesAndLogsResponse(t *testing.T) {
	p, actions, log := testProcessor(t, nil)

	p.Handle(context.Background(), cmd("c1", models.CommandReloadContent, ""))

	if got := actions.count("reload"); got != 1 {
		t.Errorf("reload calls = %d, want 1", got)
	}
	responses, err := log.List()
	if err != nil {
		t.Fatalf("list responses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	if !responses[0].Success || responses[0].CommandID != "c1" {
		t.Errorf("response = %+v", responses[0])
	}
}

func TestHandleRejectsMalformedCommand(t *testing.T) {
	p, actions, log := testProcessor(t, nil)

	p.Handle(context.Background(), models.Command{Type: models.CommandRestart})
	p.Handle(context.Background(), models.Command{CommandID: "c1"})

	if got := actions.count("restart"); got != 0 {
		t.Errorf("restart calls = %d, want 0", got)
	}
	if got := log.Len(); got != 0 {
		t.Errorf("log entries = %d, want 0", got)
	}
}

func TestDuplicateCommandRunsOnce(t *testing.T) {
	p, actions, _ := testProcessor(t, nil)

	var acks []models.CommandResponse
	var mu sync.Mutex
	p.SetResponseSink(func(r models.CommandResponse) {
		mu.Lock()
		acks = append(acks, r)
		mu.Unlock()
	})

	c := cmd("c1", models.CommandReloadContent, "")
	p.Handle(context.Background(), c)
	p.Handle(context.Background(), c)

	if got := actions.count("reload"); got != 1 {
		t.Errorf("reload calls = %d, want exactly 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2 (execution + benign duplicate)", len(acks))
	}
	if acks[1].Message != "already processed" {
		t.Errorf("duplicate ack message = %q", acks[1].Message)
	}
}

func TestTypeCooldownQueuesAndReplays(t *testing.T) {
	p, actions, _ := testProcessor(t, nil)

	p.Handle(context.Background(), cmd("c1", models.CommandReloadContent, ""))
	p.Handle(context.Background(), cmd("c2", models.CommandReloadContent, ""))

	// c2 is queued, not dropped.
	if got := actions.count("reload"); got != 1 {
		t.Errorf("reload calls before cooldown = %d, want 1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if actions.count("reload") == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("queued command never replayed, reload calls = %d", actions.count("reload"))
}

func TestDisruptiveCommandWaitsForCountdown(t *testing.T) {
	p, actions, log := testProcessor(t, nil)

	p.Handle(context.Background(), cmd("c1", models.CommandRestart, ""))

	// Acknowledged immediately as scheduled, not yet executed.
	responses, _ := log.List()
	if len(responses) != 1 || !responses[0].Success {
		t.Fatalf("responses = %+v", responses)
	}
	if got := actions.count("restart"); got != 0 {
		t.Errorf("restart fired before countdown, calls = %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if actions.count("restart") == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("restart never fired after countdown")
}

func TestDisruptiveCommandCanBeCanceled(t *testing.T) {
	p, actions, _ := testProcessor(t, func(cfg *config.CommandsConfig) {
		cfg.DisruptiveCountdown = 100 * time.Millisecond
	})

	canceled := make(chan models.CommandType, 1)
	p.SetCountdownNotifier(nil, func(kind models.CommandType) { canceled <- kind })

	p.Handle(context.Background(), cmd("c1", models.CommandReboot, ""))
	if !p.CancelDisruptive(models.CommandReboot) {
		t.Fatal("cancel reported nothing pending")
	}

	select {
	case kind := <-canceled:
		if kind != models.CommandReboot {
			t.Errorf("canceled kind = %s", kind)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel notification not delivered")
	}

	time.Sleep(200 * time.Millisecond)
	if got := actions.count("reboot"); got != 0 {
		t.Errorf("reboot fired after cancel, calls = %d", got)
	}
}

func TestUnknownCommandTypeFails(t *testing.T) {
	p, _, log := testProcessor(t, nil)

	p.Handle(context.Background(), cmd("c1", models.CommandType("format-disk"), ""))

	responses, _ := log.List()
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	if responses[0].Success || responses[0].Error == "" {
		t.Errorf("response = %+v, want failure", responses[0])
	}
}

func TestHandlerErrorIsReported(t *testing.T) {
	p, actions, log := testProcessor(t, nil)
	actions.fail("clear-cache", fmt.Errorf("disk unavailable"))

	p.Handle(context.Background(), cmd("c1", models.CommandClearCache, ""))

	responses, _ := log.List()
	if len(responses) != 1 || responses[0].Success {
		t.Fatalf("responses = %+v, want one failure", responses)
	}
	if responses[0].Error != "disk unavailable" {
		t.Errorf("error = %q", responses[0].Error)
	}
}

func TestOrientationPayloadValidation(t *testing.T) {
	p, actions, _ := testProcessor(t, nil)

	p.Handle(context.Background(), cmd("c1", models.CommandUpdateOrientation, `{"orientation":"portrait"}`))
	if got := actions.count("orientation:portrait"); got != 1 {
		t.Errorf("portrait calls = %d, want 1", got)
	}

	p.Handle(context.Background(), cmd("c2", models.CommandUpdateOrientation, `{"orientation":"diagonal"}`))
	if got := actions.count("orientation:diagonal"); got != 0 {
		t.Errorf("invalid orientation executed %d times", got)
	}
}

func TestHeartbeatNudgeAfterExecution(t *testing.T) {
	p, _, _ := testProcessor(t, nil)

	nudged := make(chan struct{}, 1)
	p.SetHeartbeatNudge(func() { nudged <- struct{}{} })

	p.Handle(context.Background(), cmd("c1", models.CommandCaptureScreenshot, ""))

	select {
	case <-nudged:
	case <-time.After(time.Second):
		t.Fatal("heartbeat nudge not fired")
	}
}
