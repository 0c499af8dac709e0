// Package channel owns the realtime duplex connection for a room: dialing,
// generation-guarded callbacks, reconnect with capped exponential backoff, and
// intentional teardown.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/chronoswatch/client/internal/domain"
	"github.com/chronoswatch/client/internal/normalize"
)

const (
	initialReconnectDelay = 1000 * time.Millisecond
	maxReconnectDelay     = 8000 * time.Millisecond
)

// Events receives everything the channel decodes. Implementations dispatch
// these into the room state machine; the channel itself holds no room state.
type Events interface {
	ChannelUp()
	ChannelDown(reason string)
	SnapshotReceived(payload any)
	ParticipantsReplaced(participants []domain.Participant)
	ParticipantJoined(participant domain.Participant)
	ParticipantLeft(participantId string)
	QueueReplaced(queue []domain.Video)
	RoomErrorReceived(message string)
}

type Config struct {
	// URL is the websocket endpoint, e.g. ws://host/ws. Room code and
	// participant id are appended as query parameters.
	URL           string
	RoomCode      string
	ParticipantId string
	Events        Events
	Logger        *slog.Logger
	Clock         clockwork.Clock
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

type Manager struct {
	mu sync.Mutex

	url     string
	events  Events
	logger  *slog.Logger
	clock   clockwork.Clock
	dialer  *websocket.Dialer
	conn    *websocket.Conn
	dialing bool

	// generation tags every connection attempt; callbacks from superseded
	// attempts compare against it and bail out.
	generation     int
	reconnect      bool
	delay          time.Duration
	reconnectTimer clockwork.Timer
}

func New(cfg Config) (*Manager, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel url: %w", err)
	}
	q := u.Query()
	q.Set("roomCode", cfg.RoomCode)
	q.Set("participantId", cfg.ParticipantId)
	u.RawQuery = q.Encode()

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Manager{
		url:       u.String(),
		events:    cfg.Events,
		logger:    cfg.Logger,
		clock:     clock,
		dialer:    dialer,
		reconnect: true,
		delay:     initialReconnectDelay,
	}, nil
}

// Connect starts the first connection attempt. Subsequent attempts are
// scheduled internally until Close is called.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked()
}

func (m *Manager) connectLocked() {
	if !m.reconnect || m.conn != nil || m.dialing {
		return
	}

	m.generation++
	generation := m.generation
	m.dialing = true

	go m.dial(generation)
}

func (m *Manager) dial(generation int) {
	conn, resp, err := m.dialer.Dial(m.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.dialing = false

	if err != nil {
		m.logger.Debug("channel dial failed", "err", err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.events.ChannelDown("Realtime connection error")
		return
	}

	m.conn = conn
	m.delay = initialReconnectDelay
	m.mu.Unlock()

	m.events.ChannelUp()
	// ask for a full state refresh right away; cross-reconnect ordering is
	// not guaranteed, so never assume the last snapshot is still current
	if err := m.Send("get_state", struct{}{}); err != nil {
		m.logger.Debug("failed to request state refresh", "err", err)
	}

	go m.readLoop(generation, conn)
}

func (m *Manager) readLoop(generation int, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()

		m.mu.Lock()
		if generation != m.generation {
			m.mu.Unlock()
			return
		}
		if err != nil {
			if m.conn == conn {
				m.conn = nil
			}
			conn.Close()
			m.scheduleReconnectLocked()
			m.mu.Unlock()
			m.events.ChannelDown("Realtime disconnected, reconnecting...")
			return
		}
		m.mu.Unlock()

		m.handleFrame(raw)
	}
}

// scheduleReconnectLocked schedules the next attempt after the current
// backoff delay. The delay doubles when the timer fires, so the scheduled
// sequence is 1000, 2000, 4000, 8000, 8000, ... and resets on any successful
// open.
func (m *Manager) scheduleReconnectLocked() {
	if !m.reconnect {
		return
	}

	m.reconnectTimer = m.clock.AfterFunc(m.delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.delay = min(m.delay*2, maxReconnectDelay)
		m.connectLocked()
	})
}

type inbound struct {
	Type string `json:"type"`
}

func (m *Manager) handleFrame(raw []byte) {
	var head inbound
	if err := json.Unmarshal(raw, &head); err != nil || head.Type == "" {
		m.events.RoomErrorReceived("Invalid realtime message received")
		return
	}

	var message map[string]any
	if err := json.Unmarshal(raw, &message); err != nil {
		m.events.RoomErrorReceived("Invalid realtime message received")
		return
	}

	switch head.Type {
	case "state_sync":
		// snapshot fields ride at the top level of the message
		m.events.SnapshotReceived(message)

	case "participant_joined":
		if participant, ok := normalize.Participant(message["participant"]); ok {
			m.events.ParticipantJoined(participant)
		}

	case "participant_left":
		payload, _ := message["participant"].(map[string]any)
		if id := normalize.String(payload["id"], ""); id != "" {
			m.events.ParticipantLeft(id)
		}

	case "queue_updated":
		m.events.QueueReplaced(normalize.Videos(message["queue"]))

	case "error":
		text := normalize.String(message["message"], "")
		if text == "" {
			text = normalize.String(message["code"], "")
		}
		if text == "" {
			text = "Unexpected room error"
		}
		m.events.RoomErrorReceived(text)

	case "ws_connected":
		if participants, ok := message["participants"]; ok && participants != nil {
			m.events.ParticipantsReplaced(normalize.Participants(participants))
		}
		if state, ok := message["currentState"]; ok && state != nil {
			m.events.SnapshotReceived(state)
		}
		m.events.ChannelUp()

	default:
		m.logger.Debug("unhandled channel message", "type", head.Type)
	}
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Send writes an intent envelope. Sends while disconnected are dropped; the
// post-reconnect state refresh supersedes anything lost.
func (m *Manager) Send(messageType string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("channel is not connected")
	}

	if err := conn.WriteJSON(outbound{Type: messageType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s: %w", messageType, err)
	}
	return nil
}

// Close is the intentional teardown: it disables reconnection, invalidates all
// outstanding callbacks, cancels any pending reconnect and closes the socket.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconnect = false
	m.generation++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.conn != nil {
		m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			m.clock.Now().Add(time.Second))
		m.conn.Close()
		m.conn = nil
	}
	m.dialing = false
}

// ConnectedWait blocks until the channel reports a live connection or ctx
// ends. Intended for tests and CLI startup gating.
func (m *Manager) ConnectedWait(ctx context.Context) error {
	for {
		m.mu.Lock()
		connected := m.conn != nil
		m.mu.Unlock()
		if connected {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
