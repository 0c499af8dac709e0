package channel

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoswatch/client/internal/domain"
)

type eventRecorder struct {
	mu        sync.Mutex
	ups       int
	downs     []string
	snapshots []any
	joined    []domain.Participant
	left      []string
	rosters   [][]domain.Participant
	queues    [][]domain.Video
	errors    []string

	upCh   chan struct{}
	downCh chan string
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		upCh:   make(chan struct{}, 32),
		downCh: make(chan string, 32),
	}
}

func (r *eventRecorder) ChannelUp() {
	r.mu.Lock()
	r.ups++
	r.mu.Unlock()
	r.upCh <- struct{}{}
}

func (r *eventRecorder) ChannelDown(reason string) {
	r.mu.Lock()
	r.downs = append(r.downs, reason)
	r.mu.Unlock()
	r.downCh <- reason
}

func (r *eventRecorder) SnapshotReceived(payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, payload)
}

func (r *eventRecorder) ParticipantsReplaced(participants []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, participants)
}

func (r *eventRecorder) ParticipantJoined(participant domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joined = append(r.joined, participant)
}

func (r *eventRecorder) ParticipantLeft(participantId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.left = append(r.left, participantId)
}

func (r *eventRecorder) QueueReplaced(queue []domain.Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = append(r.queues, queue)
}

func (r *eventRecorder) RoomErrorReceived(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func waitDown(t *testing.T, r *eventRecorder) string {
	t.Helper()
	select {
	case reason := <-r.downCh:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ChannelDown")
		return ""
	}
}

func waitUp(t *testing.T, r *eventRecorder) {
	t.Helper()
	select {
	case <-r.upCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ChannelUp")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

type serverConn struct {
	conn  *websocket.Conn
	query map[string][]string
}

func wsTestServer(t *testing.T) (string, chan serverConn) {
	t.Helper()
	conns := make(chan serverConn, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- serverConn{conn: conn, query: r.URL.Query()}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http"), conns
}

func newTestManager(t *testing.T, url string, events Events, clock clockwork.Clock) *Manager {
	t.Helper()
	m, err := New(Config{
		URL:           url,
		RoomCode:      "ABC123",
		ParticipantId: "p1",
		Events:        events,
		Logger:        discardLogger(),
		Clock:         clock,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestConnectAddressAndStateRefresh(t *testing.T) {
	url, conns := wsTestServer(t)
	recorder := newEventRecorder()
	m := newTestManager(t, url, recorder, clockwork.NewRealClock())

	m.Connect()
	waitUp(t, recorder)
	require.NoError(t, m.ConnectedWait(context.Background()))

	accepted := <-conns
	defer accepted.conn.Close()
	assert.Equal(t, []string{"ABC123"}, accepted.query["roomCode"])
	assert.Equal(t, []string{"p1"}, accepted.query["participantId"])

	// first outbound frame is the full state refresh request
	var msg map[string]any
	require.NoError(t, accepted.conn.ReadJSON(&msg))
	assert.Equal(t, "get_state", msg["type"])
}

func TestReconnectBackoffBound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	recorder := newEventRecorder()
	// nothing listens here, every dial fails fast
	m := newTestManager(t, "ws://127.0.0.1:1/ws", recorder, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.Connect()
	waitDown(t, recorder)

	// scheduled delays double from 1000ms and cap at 8000ms
	for _, delay := range []time.Duration{1000, 2000, 4000, 8000, 8000, 8000} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1), "reconnect timer must be armed")

		// advancing just shy of the delay must not trigger a redial
		clock.Advance(delay*time.Millisecond - time.Millisecond)
		select {
		case reason := <-recorder.downCh:
			t.Fatalf("redial fired early: %s", reason)
		case <-time.After(50 * time.Millisecond):
		}

		clock.Advance(time.Millisecond)
		waitDown(t, recorder)
	}
}

func TestBackoffResetsAfterSuccessfulOpen(t *testing.T) {
	url, conns := wsTestServer(t)
	clock := clockwork.NewFakeClock()
	recorder := newEventRecorder()
	m := newTestManager(t, url, recorder, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.Connect()
	waitUp(t, recorder)
	accepted := <-conns

	// drop the connection from the server side
	accepted.conn.Close()
	waitDown(t, recorder)

	// delay is back to 1000ms after the successful open
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(1000 * time.Millisecond)
	waitUp(t, recorder)
	reconnected := <-conns
	reconnected.conn.Close()
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	recorder := newEventRecorder()
	m := newTestManager(t, "ws://127.0.0.1:1/ws", recorder, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.Connect()
	waitDown(t, recorder)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	m.Close()
	clock.Advance(time.Minute)

	select {
	case reason := <-recorder.downCh:
		t.Fatalf("dial attempted after intentional teardown: %s", reason)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseSilencesLateServerFrames(t *testing.T) {
	url, conns := wsTestServer(t)
	recorder := newEventRecorder()
	m := newTestManager(t, url, recorder, clockwork.NewRealClock())

	m.Connect()
	waitUp(t, recorder)
	accepted := <-conns

	m.Close()
	// superseded connection: anything it produces must be ignored
	accepted.conn.WriteJSON(map[string]any{"type": "error", "message": "late"})
	accepted.conn.Close()
	time.Sleep(100 * time.Millisecond)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Empty(t, recorder.errors)
	assert.Empty(t, recorder.downs, "teardown close is not a loss")
}

func TestHandleFrameDecoding(t *testing.T) {
	recorder := newEventRecorder()
	m := newTestManager(t, "ws://127.0.0.1:1/ws", recorder, clockwork.NewFakeClock())

	m.handleFrame([]byte(`{"type":"state_sync","stateVersion":4,"currentTime":9}`))
	m.handleFrame([]byte(`{"type":"participant_joined","participant":{"id":"p2","nickname":"Joiner"}}`))
	m.handleFrame([]byte(`{"type":"participant_joined","participant":{"id":"p3"}}`)) // no nickname, dropped
	m.handleFrame([]byte(`{"type":"participant_left","participant":{"id":"p2"}}`))
	m.handleFrame([]byte(`{"type":"queue_updated","queue":[{"id":"v1"},{"oops":1}]}`))
	m.handleFrame([]byte(`{"type":"error","message":"Queue is full"}`))
	m.handleFrame([]byte(`{"type":"error","code":"E42"}`))
	m.handleFrame([]byte(`{"type":"error"}`))
	m.handleFrame([]byte(`not json at all`))
	m.handleFrame([]byte(`{"no":"type"}`))

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	require.Len(t, recorder.snapshots, 1)
	require.Len(t, recorder.joined, 1)
	assert.Equal(t, "p2", recorder.joined[0].Id)
	assert.Equal(t, []string{"p2"}, recorder.left)
	require.Len(t, recorder.queues, 1)
	assert.Len(t, recorder.queues[0], 1)
	assert.Equal(t, []string{
		"Queue is full",
		"E42",
		"Unexpected room error",
		"Invalid realtime message received",
		"Invalid realtime message received",
	}, recorder.errors)
}

func TestWsConnectedBundle(t *testing.T) {
	recorder := newEventRecorder()
	m := newTestManager(t, "ws://127.0.0.1:1/ws", recorder, clockwork.NewFakeClock())

	m.handleFrame([]byte(`{
		"type": "ws_connected",
		"participants": [{"id":"p1","nickname":"Host"}],
		"currentState": {"stateVersion": 2}
	}`))

	waitUp(t, recorder)
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Len(t, recorder.rosters, 1)
	assert.Len(t, recorder.rosters[0], 1)
	require.Len(t, recorder.snapshots, 1)
}

func TestSendWhileDisconnected(t *testing.T) {
	recorder := newEventRecorder()
	m := newTestManager(t, "ws://127.0.0.1:1/ws", recorder, clockwork.NewFakeClock())

	err := m.Send("control", map[string]any{"type": "play"})
	assert.Error(t, err)
}
