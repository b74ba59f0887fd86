// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/netstate"
	"github.com/deenboard/display-agent/internal/store"
)

var upgrader = websocket.Upgrader{}

// wsHarness runs an in-process WebSocket server and hands accepted
// connections to the test.
type wsHarness struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{conns: make(chan *websocket.Conn, 4)}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns <- conn
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *wsHarness) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

// accept waits for the next client connection and consumes its hello.
func (h *wsHarness) accept(t *testing.T) (*websocket.Conn, hello) {
	t.Helper()
	select {
	case conn := <-h.conns:
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read hello: %v", err)
		}
		var auth hello
		if err := json.Unmarshal(raw, &auth); err != nil {
			t.Fatalf("decode hello: %v", err)
		}
		return conn, auth
	case <-time.After(2 * time.Second):
		t.Fatal("no connection within deadline")
		return nil, hello{}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func testChannel(t *testing.T, url string, mutate func(*config.RealtimeConfig)) *Channel {
	t.Helper()
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	creds, err := store.NewCredentials(db)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if err := creds.SetPair(models.Credentials{APIKey: "tok-1", ScreenID: "screen-1", MasjidID: "masjid-1"}); err != nil {
		t.Fatalf("set pair: %v", err)
	}

	cfg := config.RealtimeConfig{
		URL:               url,
		HandshakeTimeout:  time.Second,
		HeartbeatNormal:   time.Minute,
		HeartbeatFast:     25 * time.Millisecond,
		ReconnectBase:     10 * time.Millisecond,
		ReconnectMax:      50 * time.Millisecond,
		ReconnectAttempts: 3,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ch := New(cfg, creds, netstate.New())
	t.Cleanup(ch.Disconnect)
	return ch
}

func waitForState(t *testing.T, ch *Channel, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", ch.State(), want)
}

func TestConnectSendsAuthHello(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, auth := h.accept(t)

	if auth.Type != "display" {
		t.Errorf("hello type = %q, want display", auth.Type)
	}
	if auth.ScreenID != "screen-1" || auth.Token != "tok-1" || auth.MasjidID != "masjid-1" {
		t.Errorf("hello = %+v", auth)
	}
	waitForState(t, ch, StateConnected)
}

func TestConnectWithoutCredentials(t *testing.T) {
	h := newHarness(t)
	db, _ := store.OpenInMemory()
	t.Cleanup(func() { db.Close() })
	creds, err := store.NewCredentials(db)
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	ch := New(config.RealtimeConfig{URL: h.url()}, creds, netstate.New())

	if err := ch.Connect(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.accept(t)
	waitForState(t, ch, StateConnected)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	select {
	case <-h.conns:
		t.Fatal("second connect opened a second socket")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCommandNormalization(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	received := make(chan models.Command, 2)
	ch.OnCommand(func(cmd models.Command) { received <- cmd })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	// Generic shape.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"screen:command","data":{"commandId":"c1","type":"reload-content"}}`))
	// Type-specific shape: type comes from the event suffix.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"screen:command:restart","data":{"commandId":"c2"}}`))

	for i, want := range []struct {
		id  string
		typ models.CommandType
	}{
		{"c1", models.CommandReloadContent},
		{"c2", models.CommandRestart},
	} {
		select {
		case cmd := <-received:
			if cmd.CommandID != want.id || cmd.Type != want.typ {
				t.Errorf("command %d = %+v, want id=%s type=%s", i, cmd, want.id, want.typ)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("command %d not delivered", i)
		}
	}
	if got := ch.OutstandingAcks(); got != 2 {
		t.Errorf("outstanding acks = %d, want 2", got)
	}
}

func TestAcknowledgeCommand(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	received := make(chan models.Command, 1)
	ch.OnCommand(func(cmd models.Command) { received <- cmd })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"screen:command","data":{"commandId":"c1","type":"restart"}}`))
	<-received

	if err := ch.AcknowledgeCommand(models.CommandResponse{CommandID: "c1", Success: true, Message: "done"}); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if got := ch.OutstandingAcks(); got != 0 {
		t.Errorf("outstanding acks = %d, want 0", got)
	}

	// The ack frame may arrive after a fast-cadence heartbeat.
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame := readFrame(t, conn, time.Until(deadline))
		if frame.Event == EventHeartbeat {
			continue
		}
		if frame.Event != EventCommandAck {
			t.Fatalf("event = %q, want %q", frame.Event, EventCommandAck)
		}
		var ack ackPayload
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if ack.CommandID != "c1" || !ack.Success || ack.Message != "done" {
			t.Errorf("ack = %+v", ack)
		}
		return
	}
}

func TestFastCadenceWhileCommandOutstanding(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)
	ch.SetTelemetryProvider(func() models.Telemetry {
		return models.Telemetry{AppVersion: "test"}
	})

	received := make(chan models.Command, 1)
	ch.OnCommand(func(cmd models.Command) { received <- cmd })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	// Normal cadence is a minute; a heartbeat arriving quickly proves
	// the command kicked the loop onto the fast cadence.
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"screen:command","data":{"commandId":"c1","type":"restart"}}`))
	<-received

	frame := readFrame(t, conn, time.Second)
	if frame.Event != EventHeartbeat {
		t.Fatalf("event = %q, want %q", frame.Event, EventHeartbeat)
	}
	var hb heartbeatPayload
	if err := json.Unmarshal(frame.Data, &hb); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if hb.ScreenID != "screen-1" {
		t.Errorf("heartbeat screenId = %q", hb.ScreenID)
	}
	if hb.Telemetry == nil || hb.Telemetry.AppVersion != "test" {
		t.Errorf("heartbeat telemetry = %+v", hb.Telemetry)
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	conn.Close()

	// Client must dial again and re-authenticate on its own.
	_, auth := h.accept(t)
	if auth.ScreenID != "screen-1" {
		t.Errorf("reconnect hello = %+v", auth)
	}
	waitForState(t, ch, StateConnected)
}

func TestReconnectCeilingEntersErrorState(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), func(cfg *config.RealtimeConfig) {
		cfg.URL = "ws://127.0.0.1:1" // nothing listening
		cfg.ReconnectAttempts = 2
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitForState(t, ch, StateError)

	// A manual Connect resumes after the ceiling.
	ch2 := testChannel(t, h.url(), nil)
	if err := ch2.Connect(context.Background()); err != nil {
		t.Fatalf("manual reconnect: %v", err)
	}
	h.accept(t)
	waitForState(t, ch2, StateConnected)
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.accept(t)
	waitForState(t, ch, StateConnected)

	ch.Disconnect()
	if got := ch.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	select {
	case <-h.conns:
		t.Fatal("intentional disconnect must not auto-reconnect")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestEventSubscriptions(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	events := make(chan Frame, 2)
	unsubscribe := ch.OnEvent(func(f Frame) { events <- f })

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"emergency:alert","data":{"message":"closure"}}`))
	select {
	case frame := <-events:
		if frame.Event != EventEmergencyAlert {
			t.Errorf("event = %q, want %q", frame.Event, EventEmergencyAlert)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	unsubscribe()
	conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"content:update"}`))
	select {
	case frame := <-events:
		t.Fatalf("unsubscribed handler got %q", frame.Event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOutboundStatusFrames(t *testing.T) {
	h := newHarness(t)
	ch := testChannel(t, h.url(), nil)

	if err := ch.RequestSync(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("RequestSync before connect = %v, want ErrNotConnected", err)
	}

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, _ := h.accept(t)
	waitForState(t, ch, StateConnected)

	if err := ch.ReportError("screenshot tool missing"); err != nil {
		t.Fatalf("ReportError: %v", err)
	}
	if err := ch.SendStatus(map[string]string{"orientation": "portrait"}); err != nil {
		t.Fatalf("SendStatus: %v", err)
	}
	if err := ch.RequestSync(); err != nil {
		t.Fatalf("RequestSync: %v", err)
	}

	want := []string{EventError, EventStatus, EventSyncRequest}
	for _, event := range want {
		frame := readFrame(t, conn, 2*time.Second)
		for frame.Event == EventHeartbeat {
			frame = readFrame(t, conn, 2*time.Second)
		}
		if frame.Event != event {
			t.Fatalf("frame = %q, want %q", frame.Event, event)
		}
		switch event {
		case EventError:
			var payload map[string]string
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload["error"] != "screenshot tool missing" {
				t.Errorf("error payload = %q", payload["error"])
			}
		case EventStatus:
			var payload map[string]string
			if err := json.Unmarshal(frame.Data, &payload); err != nil {
				t.Fatalf("decode status payload: %v", err)
			}
			if payload["orientation"] != "portrait" {
				t.Errorf("status payload = %q", payload["orientation"])
			}
		}
	}
}
