// Package channel owns the persistent bidirectional connection to the
// Devika backend: dialing, the fixed set of named inbound events,
// generic passthrough registration, and outbound emissions.
//
// Wire frames are JSON objects of the form {"event": name, "data": ...}
// in both directions. Malformed payloads are logged and dropped at this
// boundary, never propagated.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stitionai/devika-go/internal/logging"
	"github.com/stitionai/devika-go/internal/store"
)

// Named events the manager owns. Handlers for these are registered by
// Attach and removed by Detach.
const (
	EventServerMessage = "server-message"
	EventAgentState    = "agent-state"
	EventTokens        = "tokens"
	EventInference     = "inference"
	EventInfo          = "info"

	// EventHello is the one-time connection announcement sent after dialing.
	EventHello = "socket_connect"
	// EventHelloAck is the server's acknowledgement of the announcement.
	EventHelloAck = "socket_response"
)

// ErrNotConnected is returned when emitting on a closed or undialed channel.
var ErrNotConnected = errors.New("channel not connected")

// Handler processes the raw payload of one inbound event.
type Handler func(data json.RawMessage)

// Events defines typed callbacks for the fixed set of named events.
// All callbacks are optional; nil callbacks are ignored. Callbacks are
// invoked from the read loop goroutine, one at a time, in arrival
// order. No ordering is guaranteed across distinct event names by the
// backend; callbacks must not assume any.
type Events struct {
	// OnServerMessage is called with each streamed message record.
	OnServerMessage func(msg store.Message)

	// OnAgentState is called with the batched snapshot array exactly as
	// received. Consumers apply the last-write-wins rule.
	OnAgentState func(states []store.AgentState)

	// OnTokens is called with the replacement token-usage total.
	OnTokens func(usage int)

	// OnInference is called for inference advisories.
	OnInference func(kind, message string)

	// OnInfo is called for general advisories.
	OnInfo func(kind, message string)

	// OnHelloAck is called when the server acknowledges the hello.
	OnHelloAck func(data string)

	// OnDisconnected is called when the connection is closed, with the
	// read error that ended the loop.
	OnDisconnected func(err error)
}

// frame is one wire message in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outFrame carries an un-marshalled payload for writing.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Manager owns the channel lifecycle. It is safe for concurrent use.
type Manager struct {
	baseURL  string
	clientID string
	events   Events

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	handlers  map[string]Handler

	cancel context.CancelFunc
}

// New creates a manager for the backend at baseURL (http or https; the
// scheme is converted for the websocket endpoint).
func New(baseURL string, events Events) *Manager {
	return &Manager{
		baseURL:  baseURL,
		clientID: uuid.NewString(),
		events:   events,
		handlers: make(map[string]Handler),
	}
}

// ClientID returns the identifier announced in the hello frame.
func (m *Manager) ClientID() string {
	return m.clientID
}

// Attach establishes the transport connection, emits the one-time hello
// event, and registers exactly one handler per named event. Handlers
// are keyed by event name and the last registration wins, so calling
// Attach after a prior Detach never double-registers.
func (m *Manager) Attach(ctx context.Context) error {
	log := logging.Channel()

	m.mu.Lock()
	dialed := false
	if !m.connected {
		if m.conn != nil {
			// Stale connection from a previous attach whose read loop died.
			m.conn.Close()
			m.conn = nil
		}
		u, err := url.Parse(m.baseURL)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("parse base URL: %w", err)
		}
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		u.Path = "/ws"

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("websocket connect: %w", err)
		}
		m.conn = conn
		m.connected = true
		dialed = true

		loopCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		go m.readLoop(loopCtx)

		log.Debug("channel connected", "url", u.String(), "client_id", m.clientID)
	}
	m.registerOwnedLocked()
	m.mu.Unlock()

	// One-time connection announcement, only for a fresh connection.
	if dialed {
		if err := m.Emit(EventHello, map[string]string{"client_id": m.clientID}); err != nil {
			return fmt.Errorf("hello: %w", err)
		}
	}
	return nil
}

// Detach unregisters the handlers this manager owns. It is a no-op when
// the transport does not report itself connected, so detaching twice
// (or before any attach) never fails.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return
	}
	for _, name := range ownedEvents() {
		delete(m.handlers, name)
	}
	logging.Channel().Debug("channel handlers detached")
}

// Connected reports whether the transport is currently connected.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// On registers a passthrough handler for an ad-hoc event. Registration
// is keyed by event name; the last registration wins.
func (m *Manager) On(event string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = fn
}

// Emit sends a fire-and-forget outbound event. The payload is opaque to
// the manager.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected || m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.WriteJSON(outFrame{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close disconnects the transport. Registered handlers are kept; a
// subsequent Attach dials again and re-registers the owned set.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	err := m.conn.Close()
	m.conn = nil
	m.connected = false
	return err
}

// ownedEvents lists the named events whose handlers Attach registers.
func ownedEvents() []string {
	return []string{
		EventServerMessage,
		EventAgentState,
		EventTokens,
		EventInference,
		EventInfo,
		EventHelloAck,
	}
}

// registerOwnedLocked installs the fixed handler set. Map assignment
// makes re-registration idempotent. Caller holds m.mu.
func (m *Manager) registerOwnedLocked() {
	m.handlers[EventServerMessage] = m.handleServerMessage
	m.handlers[EventAgentState] = m.handleAgentState
	m.handlers[EventTokens] = m.handleTokens
	m.handlers[EventInference] = m.advisoryHandler(EventInference, func(kind, msg string) {
		if m.events.OnInference != nil {
			m.events.OnInference(kind, msg)
		}
	})
	m.handlers[EventInfo] = m.advisoryHandler(EventInfo, func(kind, msg string) {
		if m.events.OnInfo != nil {
			m.events.OnInfo(kind, msg)
		}
	})
	m.handlers[EventHelloAck] = m.handleHelloAck
}

// readLoop reads frames until the connection fails or the context ends.
func (m *Manager) readLoop(ctx context.Context) {
	log := logging.Channel()

	defer func() {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		conn := m.conn
		m.mu.Unlock()
		if conn == nil {
			return
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			m.mu.Lock()
			m.connected = false
			m.mu.Unlock()
			if ctx.Err() == nil && m.events.OnDisconnected != nil {
				m.events.OnDisconnected(err)
			}
			return
		}

		m.mu.Lock()
		handler := m.handlers[f.Event]
		m.mu.Unlock()

		if handler == nil {
			log.Debug("unhandled event", "event", f.Event)
			continue
		}
		handler(f.Data)
	}
}

func (m *Manager) handleServerMessage(data json.RawMessage) {
	var payload struct {
		Messages store.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.Channel().Warn("malformed server-message payload", "error", err)
		return
	}
	if m.events.OnServerMessage != nil {
		m.events.OnServerMessage(payload.Messages)
	}
}

func (m *Manager) handleAgentState(data json.RawMessage) {
	var states []store.AgentState
	if err := json.Unmarshal(data, &states); err != nil {
		logging.Channel().Warn("malformed agent-state payload", "error", err)
		return
	}
	if len(states) == 0 {
		logging.Channel().Warn("empty agent-state batch")
		return
	}
	if m.events.OnAgentState != nil {
		m.events.OnAgentState(states)
	}
}

func (m *Manager) handleTokens(data json.RawMessage) {
	var payload struct {
		TokenUsage int `json:"token_usage"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.Channel().Warn("malformed tokens payload", "error", err)
		return
	}
	if m.events.OnTokens != nil {
		m.events.OnTokens(payload.TokenUsage)
	}
}

// advisoryHandler decodes the shared {type, message} advisory shape.
func (m *Manager) advisoryHandler(event string, fn func(kind, message string)) Handler {
	return func(data json.RawMessage) {
		var payload struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			logging.Channel().Warn("malformed advisory payload", "event", event, "error", err)
			return
		}
		fn(payload.Type, payload.Message)
	}
}

func (m *Manager) handleHelloAck(data json.RawMessage) {
	var payload struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.Channel().Warn("malformed hello ack", "error", err)
		return
	}
	if m.events.OnHelloAck != nil {
		m.events.OnHelloAck(payload.Data)
	}
}
