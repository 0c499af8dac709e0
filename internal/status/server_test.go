package status

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoswatch/client/internal/domain"
	"github.com/chronoswatch/client/internal/room"
)

type fakeRoom struct {
	state room.State
}

func (f *fakeRoom) Snapshot() room.State {
	return f.state
}

type fakePlayback struct {
	displayTime float64
	volume      int
}

func (f *fakePlayback) DisplayTime() float64 { return f.displayTime }
func (f *fakePlayback) Volume() int          { return f.volume }

func newTestServer(t *testing.T, playback iPlayback) (*httptest.Server, *fakeRoom) {
	t.Helper()
	state := room.InitialState()
	state.Phase = room.PhaseReady
	state.RoomCode = "ABQPL"
	state.RoomState.StateVersion = 7
	state.Participants = []domain.Participant{{Id: "p1", Nickname: "ada"}}
	fr := &fakeRoom{state: state}

	s := New(Config{
		Room:     fr,
		Playback: playback,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(s.mux())
	t.Cleanup(ts.Close)
	return ts, fr
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestGetRoom(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body struct {
		Data room.State `json:"data"`
	}
	status := getJSON(t, ts.URL+"/api/room", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, room.PhaseReady, body.Data.Phase)
	assert.Equal(t, "ABQPL", body.Data.RoomCode)
	assert.Equal(t, 7, body.Data.RoomState.StateVersion)
	require.Len(t, body.Data.Participants, 1)
	assert.Equal(t, "ada", body.Data.Participants[0].Nickname)
}

func TestGetPlayback(t *testing.T) {
	ts, _ := newTestServer(t, &fakePlayback{displayTime: 42.5, volume: 80})

	var body struct {
		Data playbackResponse `json:"data"`
	}
	status := getJSON(t, ts.URL+"/api/playback", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 42.5, body.Data.DisplayTime)
	assert.Equal(t, 80, body.Data.Volume)
}

func TestGetPlaybackUnattached(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body map[string]string
	status := getJSON(t, ts.URL+"/api/playback", &body)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "playback not attached", body["error"])
}
