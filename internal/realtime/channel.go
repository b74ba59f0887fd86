// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package realtime maintains the kiosk's persistent WebSocket link to
// the Deenboard server: authenticated connect, dual-cadence heartbeats,
// push event delivery, and reconnection with bounded exponential
// backoff. The channel owns its connection state exclusively; consumers
// observe it through subscriptions.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/deenboard/display-agent/internal/config"
	"github.com/deenboard/display-agent/internal/logging"
	"github.com/deenboard/display-agent/internal/metrics"
	"github.com/deenboard/display-agent/internal/models"
	"github.com/deenboard/display-agent/internal/netstate"
	"github.com/deenboard/display-agent/internal/store"
)

// ConnectionState is the channel's externally observable lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

var (
	// ErrNoCredentials means Connect was called before pairing. Local
	// and terminal; never retried over the network.
	ErrNoCredentials = errors.New("realtime: no credentials")

	// ErrNotConnected means a send was attempted without a live socket.
	ErrNotConnected = errors.New("realtime: not connected")
)

// Channel is the WebSocket client. One socket at most; Connect while
// connecting or connected is a no-op.
type Channel struct {
	cfg   config.RealtimeConfig
	creds *store.Credentials
	net   *netstate.Tracker

	conn   *websocket.Conn
	connMu sync.RWMutex

	mu          sync.Mutex
	state       ConnectionState
	running     bool
	intentional bool
	stopChan    chan struct{}
	stopOnce    *sync.Once
	outstanding map[string]struct{}

	nextSub   int
	cmdSubs   map[int]func(models.Command)
	stateSubs map[int]func(ConnectionState)
	eventSubs map[int]func(Frame)

	// telemetry is sampled on each heartbeat tick. Optional.
	telemetry func() models.Telemetry

	hbKick chan struct{}
	wg     sync.WaitGroup
}

func New(cfg config.RealtimeConfig, creds *store.Credentials, net *netstate.Tracker) *Channel {
	return &Channel{
		cfg:         cfg,
		creds:       creds,
		net:         net,
		state:       StateDisconnected,
		outstanding: make(map[string]struct{}),
		cmdSubs:     make(map[int]func(models.Command)),
		stateSubs:   make(map[int]func(ConnectionState)),
		eventSubs:   make(map[int]func(Frame)),
		hbKick:      make(chan struct{}, 1),
	}
}

// SetTelemetryProvider installs the sampler whose output rides each
// heartbeat. Must be called before Connect.
func (c *Channel) SetTelemetryProvider(fn func() models.Telemetry) {
	c.telemetry = fn
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the connection loop. It is a no-op while the loop is
// already running, which keeps the single-socket invariant. The actual
// dial happens asynchronously; observe progress via OnConnectionChange.
func (c *Channel) Connect(ctx context.Context) error {
	if !c.creds.Authenticated() {
		return ErrNoCredentials
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.intentional = false
	c.stopChan = make(chan struct{})
	c.stopOnce = new(sync.Once)
	stop := c.stopChan
	c.mu.Unlock()

	c.setState(StateConnecting)

	c.wg.Add(2)
	go c.run(ctx, stop)
	go c.heartbeatLoop(ctx, stop)
	return nil
}

// Disconnect stops the loop, closes the socket cleanly, and suppresses
// auto-reconnect. The only clean way to stop the retry machinery.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.intentional = true
	c.running = false
	stopChan, once := c.stopChan, c.stopOnce
	c.mu.Unlock()
	once.Do(func() { close(stopChan) })

	c.closeConn()
	c.wg.Wait()
	c.setState(StateDisconnected)
}

// run owns the socket: dial, read, tear down, redial. Exits on stop, on
// context cancellation, or when the reconnect attempt ceiling is hit.
func (c *Channel) run(ctx context.Context, stop <-chan struct{}) {
	defer c.wg.Done()

	delay := c.cfg.ReconnectBase
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		conn := c.current()
		if conn == nil {
			if attempts >= c.cfg.ReconnectAttempts {
				logging.Error().
					Int("attempts", attempts).
					Msg("Realtime reconnect attempts exhausted")
				c.mu.Lock()
				c.running = false
				stopChan, once := c.stopChan, c.stopOnce
				c.mu.Unlock()
				once.Do(func() { close(stopChan) })
				c.setState(StateError)
				return
			}
			if attempts > 0 {
				c.setState(StateReconnecting)
				metrics.RealtimeReconnects.Inc()
				select {
				case <-time.After(delay):
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
				delay *= 2
				if delay > c.cfg.ReconnectMax {
					delay = c.cfg.ReconnectMax
				}
			}
			attempts++

			if err := c.dial(ctx); err != nil {
				logging.Warn().Err(err).Int("attempt", attempts).Msg("Realtime dial failed")
				c.net.MarkOffline()
				continue
			}
			attempts = 0
			delay = c.cfg.ReconnectBase
			c.net.MarkOnline()
			c.setState(StateConnected)
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			logging.Debug().Err(err).Msg("Failed to set read deadline")
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.closeConn()
			if c.isIntentional() || ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("Realtime connection closed by server")
			} else {
				logging.Warn().Err(err).Msg("Realtime read error")
			}
			c.setState(StateDisconnected)
			continue
		}

		c.handleMessage(message)
	}
}

// dial opens the socket and sends the auth hello.
func (c *Channel) dial(ctx context.Context) error {
	creds := c.creds.Get()
	if !creds.Authenticated() {
		return ErrNoCredentials
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	auth, err := json.Marshal(hello{
		Type:     "display",
		ScreenID: creds.ScreenID,
		MasjidID: creds.MasjidID,
		Token:    creds.APIKey,
	})
	if err != nil {
		conn.Close()
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		conn.Close()
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *Channel) current() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Channel) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.conn.Close()
	c.conn = nil
}

func (c *Channel) isIntentional() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intentional
}

// handleMessage routes one inbound frame.
func (c *Channel) handleMessage(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logging.Warn().Err(err).Msg("Dropping malformed realtime frame")
		return
	}

	if isCommandEvent(frame.Event) {
		cmd, ok := normalizeCommand(frame.Event, frame.Data)
		if !ok {
			logging.Warn().Str("event", frame.Event).Msg("Dropping malformed command frame")
			return
		}
		c.mu.Lock()
		c.outstanding[cmd.CommandID] = struct{}{}
		subs := snapshot(c.cmdSubs)
		c.mu.Unlock()

		// Next heartbeat must run on the fast cadence.
		select {
		case c.hbKick <- struct{}{}:
		default:
		}

		for _, fn := range subs {
			fn(cmd)
		}
		return
	}

	switch frame.Event {
	case EventHeartbeatAck:
		logging.Trace().Msg("Heartbeat acknowledged")
	case "":
		logging.Warn().Msg("Dropping frame without event name")
		return
	}

	c.mu.Lock()
	subs := snapshot(c.eventSubs)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(frame)
	}
}

// AcknowledgeCommand reports a command outcome over the socket and
// clears it from the outstanding set, reverting the heartbeat cadence
// once nothing is left unacknowledged.
func (c *Channel) AcknowledgeCommand(resp models.CommandResponse) error {
	c.mu.Lock()
	delete(c.outstanding, resp.CommandID)
	c.mu.Unlock()

	payload := ackPayload{
		CommandID: resp.CommandID,
		Success:   resp.Success,
		Message:   resp.Message,
		Error:     resp.Error,
	}
	return c.Send(EventCommandAck, payload)
}

// OutstandingAcks returns the number of commands awaiting acknowledgement.
func (c *Channel) OutstandingAcks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// Send writes one frame to the socket.
func (c *Channel) Send(event string, payload any) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	raw, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// ReportError pushes a client-side error upstream for operator visibility.
func (c *Channel) ReportError(msg string) error {
	return c.Send(EventError, map[string]string{"error": msg})
}

// SendStatus pushes an unsolicited status frame.
func (c *Channel) SendStatus(status any) error {
	return c.Send(EventStatus, status)
}

// RequestSync asks the server to schedule a content push for this screen.
func (c *Channel) RequestSync() error {
	return c.Send(EventSyncRequest, nil)
}

// OnCommand subscribes to normalized inbound commands. Returns an
// unsubscribe func.
func (c *Channel) OnCommand(fn func(models.Command)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.cmdSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.cmdSubs, id)
	}
}

// OnConnectionChange subscribes to state transitions.
func (c *Channel) OnConnectionChange(fn func(ConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.stateSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateSubs, id)
	}
}

// OnEvent subscribes to non-command inbound frames (content updates,
// emergency alerts, orientation changes).
func (c *Channel) OnEvent(fn func(Frame)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.eventSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.eventSubs, id)
	}
}

func (c *Channel) setState(next ConnectionState) {
	c.mu.Lock()
	if c.state == next {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = next
	subs := snapshot(c.stateSubs)
	c.mu.Unlock()

	metrics.RealtimeState.Set(stateMetric(next))
	logging.Info().
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("Realtime state changed")
	for _, fn := range subs {
		fn(next)
	}
}

func stateMetric(s ConnectionState) float64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateReconnecting:
		return 3
	case StateError:
		return 4
	default:
		return 0
	}
}

// snapshot copies a subscriber map so callbacks run outside the lock.
func snapshot[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
