package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGetRoomNormalizesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/ABC123", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.Write([]byte(`{
			"state": {"stateVersion": 3, "currentTime": 12, "queue": [{"id":"v1"},{"bad":true}]},
			"participants": [{"id":"p1","nickname":"Host","isHost":true},{"junk":1}]
		}`))
	}))
	defer server.Close()

	bundle, err := NewClient(server.URL, discardLogger()).GetRoom(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 3, bundle.State.StateVersion)
	assert.Equal(t, float64(12), bundle.State.CurrentTime)
	require.Len(t, bundle.State.Queue, 1)
	require.Len(t, bundle.Participants, 1)
	assert.True(t, bundle.Participants[0].IsHost)
	assert.Equal(t, 1, bundle.State.ParticipantCount, "count falls back to roster length")
}

func TestGetRoomServerErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Room not found"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, discardLogger()).GetRoom(context.Background(), "NOPE99")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Room not found", serverErr.Message)
	assert.Equal(t, http.StatusNotFound, serverErr.StatusCode)
}

func TestGetRoomUnreadableErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>nope</html>"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, discardLogger()).GetRoom(context.Background(), "ABC123")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "Server unavailable. Please try again later.", serverErr.Message)

	// non-5xx with no error body keeps the generic message
	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server2.Close()

	_, err = NewClient(server2.URL, discardLogger()).GetRoom(context.Background(), "ABC123")
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, ErrRoomLoadFailed.Error(), serverErr.Message)
}

func TestGetRoomDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, discardLogger()).GetRoom(ctx, "ABC123")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCreateRoom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/rooms", r.URL.Path)
		w.Write([]byte(`{"roomCode":"abc123","participantId":"p-host"}`))
	}))
	defer server.Close()

	code, session, err := NewClient(server.URL, discardLogger()).CreateRoom(context.Background(), "Host")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", code, "room code is uppercased")
	assert.Equal(t, "p-host", session.ParticipantId)
	assert.True(t, session.IsHost)
}

func TestJoinRoom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/ABC123/join", r.URL.Path)
		w.Write([]byte(`{"participantId":"p-guest"}`))
	}))
	defer server.Close()

	session, err := NewClient(server.URL, discardLogger()).JoinRoom(context.Background(), "abc123", "Guest")
	require.NoError(t, err)
	assert.Equal(t, "p-guest", session.ParticipantId)
	assert.False(t, session.IsHost)
}

func TestHealth(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "/health", r.URL.Path)
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL, discardLogger()).Health(context.Background()))
	assert.Equal(t, 1, hits)
}
