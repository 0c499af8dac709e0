package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chronoswatch/client/internal/api"
	"github.com/chronoswatch/client/internal/channel"
	"github.com/chronoswatch/client/internal/domain"
	"github.com/chronoswatch/client/internal/session"
)

const (
	defaultFetchTimeout = 10 * time.Second

	// ping the backend while in a room so a free-tier deployment is not
	// suspended under us
	defaultKeepAliveInterval = 5 * time.Minute
)

var (
	ErrMissingRoomCode = errors.New("missing room code")
	ErrEnterFailed     = errors.New("failed to enter room")
)

type iRoomAPI interface {
	GetRoom(ctx context.Context, code string) (api.RoomBundle, error)
	Health(ctx context.Context) error
}

type iSessions interface {
	Resolve(roomCode string, candidate session.Candidate) (domain.Session, error)
	Clear() error
}

// Channel is the realtime connection surface the manager drives.
type Channel interface {
	Connect()
	Send(messageType string, payload any) error
	Close()
}

// ChannelFactory builds the realtime channel for a resolved room entry.
type ChannelFactory func(roomCode, participantId string, events channel.Events) (Channel, error)

type ManagerConfig struct {
	API        iRoomAPI
	Sessions   iSessions
	NewChannel ChannelFactory
	Logger     *slog.Logger
	Clock      clockwork.Clock
	// NavigateHome is invoked exactly once per identity failure, and on leave.
	NavigateHome func()
	// OnChange observes every state transition, outside the manager lock.
	OnChange          func(State)
	FetchTimeout      time.Duration
	KeepAliveInterval time.Duration
}

// Manager owns the BootstrapState for one room entry and serializes every
// asynchronous event (fetch results, channel callbacks, timers) into the
// reducer. Nothing else mutates the state.
type Manager struct {
	mu    sync.Mutex
	state State

	apiClient  iRoomAPI
	sessions   iSessions
	newChannel ChannelFactory
	logger     *slog.Logger
	clock      clockwork.Clock

	navigateHome func()
	onChange     func(State)

	fetchTimeout      time.Duration
	keepAliveInterval time.Duration

	channel       Channel
	keepAliveStop chan struct{}
	redirected    bool
}

func NewManager(cfg ManagerConfig) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = defaultFetchTimeout
	}
	keepAliveInterval := cfg.KeepAliveInterval
	if keepAliveInterval == 0 {
		keepAliveInterval = defaultKeepAliveInterval
	}

	return &Manager{
		state:             InitialState(),
		apiClient:         cfg.API,
		sessions:          cfg.Sessions,
		newChannel:        cfg.NewChannel,
		logger:            cfg.Logger,
		clock:             clock,
		navigateHome:      cfg.NavigateHome,
		onChange:          cfg.OnChange,
		fetchTimeout:      fetchTimeout,
		keepAliveInterval: keepAliveInterval,
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) dispatch(action Action, source string) State {
	m.mu.Lock()
	prev := m.state
	next := Reduce(prev, action)
	m.state = next
	m.mu.Unlock()

	if prev.Phase != next.Phase {
		m.logger.Debug("room phase transition",
			"source", source,
			"prev", prev.Phase,
			"next", next.Phase,
			"code", next.RoomCode,
		)
	}
	if m.onChange != nil {
		m.onChange(next)
	}
	return next
}

// fatalRedirect records a fatal identity error and sends the caller back to
// the entry screen, at most once per entry.
func (m *Manager) fatalRedirect(code, message, source string) {
	m.mu.Lock()
	if m.redirected {
		m.mu.Unlock()
		return
	}
	m.redirected = true
	m.mu.Unlock()

	m.dispatch(BootstrapFatal{Code: code, Error: message}, source)
	if m.navigateHome != nil {
		m.navigateHome()
	}
}

// Enter bootstraps the room: resolve identity, fetch the authoritative
// snapshot under a bounded deadline, then open the realtime channel.
// Re-entering the identical room code while ready is a no-op.
func (m *Manager) Enter(ctx context.Context, code string, candidate session.Candidate) error {
	m.mu.Lock()
	m.redirected = false
	m.mu.Unlock()

	prev := m.Snapshot()
	next := m.dispatch(BootstrapStart{Code: code}, "bootstrap_start")
	if next.Phase == PhaseReady {
		return nil
	}
	if prev.Phase == PhaseReady || prev.Phase == PhaseRecovering {
		// the previous room's connection does not survive a code change
		m.teardownChannel()
	}

	if code == "" {
		m.fatalRedirect(code, "Missing room code", "missing_code")
		return ErrMissingRoomCode
	}

	resolved, err := m.sessions.Resolve(code, candidate)
	if err != nil {
		m.fatalRedirect(code, "Session not found. Please join the room again.", "session_missing")
		return fmt.Errorf("failed to resolve session: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	bundle, err := m.apiClient.GetRoom(fetchCtx, code)
	if err != nil {
		m.dispatch(BootstrapFatal{Code: code, Error: fetchErrorMessage(err)}, "fetch_fail")
		return fmt.Errorf("%w: %w", ErrEnterFailed, err)
	}

	m.dispatch(BootstrapSuccess{
		Code:         code,
		Session:      resolved,
		RoomState:    bundle.State,
		Participants: bundle.Participants,
	}, "fetch_ok")

	ch, err := m.newChannel(code, resolved.ParticipantId, channelEvents{m: m})
	if err != nil {
		m.dispatch(BootstrapFatal{Code: code, Error: "Failed to open realtime connection"}, "channel_create_fail")
		return fmt.Errorf("%w: %w", ErrEnterFailed, err)
	}

	m.mu.Lock()
	m.channel = ch
	m.mu.Unlock()
	ch.Connect()

	m.startKeepAlive()

	return nil
}

func fetchErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Room startup timed out. Please try rejoining."
	}
	var serverErr *api.ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Message
	}
	return "Failed to load room"
}

func (m *Manager) startKeepAlive() {
	m.mu.Lock()
	if m.keepAliveStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.keepAliveStop = stop
	m.mu.Unlock()

	ticker := m.clock.NewTicker(m.keepAliveInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if m.Snapshot().Phase != PhaseReady {
					continue
				}
				pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := m.apiClient.Health(pingCtx); err != nil {
					m.logger.Debug("keep-alive ping failed", "err", err)
				}
				cancel()
			}
		}
	}()
}

func (m *Manager) teardownChannel() {
	m.mu.Lock()
	ch := m.channel
	m.channel = nil
	stop := m.keepAliveStop
	m.keepAliveStop = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if ch != nil {
		ch.Close()
	}
}

// Leave is the user-intent exit: announce it, drop the persisted session and
// tear everything down.
func (m *Manager) Leave() {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Send("leave_room", nil); err != nil {
			m.logger.Debug("failed to send leave_room", "err", err)
		}
	}
	if err := m.sessions.Clear(); err != nil {
		m.logger.Debug("failed to clear session", "err", err)
	}
	m.teardownChannel()
	if m.navigateHome != nil {
		m.navigateHome()
	}
}

// Shutdown tears down the connection without discarding the persisted
// session, e.g. on process exit.
func (m *Manager) Shutdown() {
	m.teardownChannel()
}

// channelEvents adapts channel callbacks into reducer actions.
type channelEvents struct {
	m *Manager
}

func (e channelEvents) ChannelUp() {
	e.m.dispatch(ChannelUp{}, "ws_open")
}

func (e channelEvents) ChannelDown(reason string) {
	e.m.dispatch(ChannelDown{Error: reason}, "ws_close")
}

func (e channelEvents) SnapshotReceived(payload any) {
	e.m.dispatch(ApplySnapshot{Payload: payload}, "ws_state_sync")
}

func (e channelEvents) ParticipantsReplaced(participants []domain.Participant) {
	e.m.dispatch(SetParticipants{Participants: participants}, "ws_participants")
}

func (e channelEvents) ParticipantJoined(participant domain.Participant) {
	e.m.dispatch(ParticipantJoined{Participant: participant}, "ws_participant_joined")
}

func (e channelEvents) ParticipantLeft(participantId string) {
	e.m.dispatch(ParticipantLeft{ParticipantId: participantId}, "ws_participant_left")
}

func (e channelEvents) QueueReplaced(queue []domain.Video) {
	e.m.dispatch(SetQueue{Queue: queue}, "ws_queue_updated")
}

func (e channelEvents) RoomErrorReceived(message string) {
	e.m.dispatch(SetRoomError{Error: message}, "ws_error")
}
