// Package room owns the lifecycle of one room entry: an explicit reducer-driven
// state machine holding the authoritative snapshot and roster, and a manager
// that serializes every asynchronous event into it.
package room

import (
	"strings"

	"github.com/chronoswatch/client/internal/domain"
	"github.com/chronoswatch/client/internal/normalize"
)

type Phase string

const (
	PhaseInitial       Phase = "initial"
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseReady         Phase = "ready"
	PhaseRecovering    Phase = "recovering"
	PhaseFatal         Phase = "fatal"
)

type State struct {
	Phase              Phase                `json:"phase"`
	RoomCode           string               `json:"roomCode"`
	Session            *domain.Session      `json:"session"`
	RoomState          domain.RoomSnapshot  `json:"roomState"`
	Participants       []domain.Participant `json:"participants"`
	LoadError          string               `json:"loadError"`
	RoomError          string               `json:"roomError"`
	LastAppliedVersion int                  `json:"lastAppliedVersion"`
}

func InitialState() State {
	return State{
		Phase:        PhaseInitial,
		RoomState:    domain.EmptySnapshot(),
		Participants: []domain.Participant{},
	}
}

// Action is the tagged union of every event the state machine consumes. All
// mutation flows through Reduce; callbacks never touch State directly.
type Action interface {
	isAction()
}

type BootstrapStart struct{ Code string }

type BootstrapSuccess struct {
	Code         string
	Session      domain.Session
	RoomState    domain.RoomSnapshot
	Participants []domain.Participant
}

type BootstrapFatal struct {
	Code  string
	Error string
}

type ChannelUp struct{}

type ChannelDown struct{ Error string }

type SetRoomError struct{ Error string }

type ClearRoomError struct{}

// ApplySnapshot carries the raw payload so the reducer can normalize it with
// the roster length it currently holds as the participant-count fallback.
type ApplySnapshot struct{ Payload any }

type SetParticipants struct{ Participants []domain.Participant }

type ParticipantJoined struct{ Participant domain.Participant }

type ParticipantLeft struct{ ParticipantId string }

type SetQueue struct{ Queue []domain.Video }

func (BootstrapStart) isAction()    {}
func (BootstrapSuccess) isAction()  {}
func (BootstrapFatal) isAction()    {}
func (ChannelUp) isAction()         {}
func (ChannelDown) isAction()       {}
func (SetRoomError) isAction()      {}
func (ClearRoomError) isAction()    {}
func (ApplySnapshot) isAction()     {}
func (SetParticipants) isAction()   {}
func (ParticipantJoined) isAction() {}
func (ParticipantLeft) isAction()   {}
func (SetQueue) isAction()          {}

// Reduce is the pure transition function. Input state is never mutated;
// slices are copied before modification.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case BootstrapStart:
		// Re-entering the identical room while ready is a no-op so benign
		// re-entries do not tear down a live connection.
		if s.Phase == PhaseReady && s.RoomCode != "" && a.Code != "" &&
			strings.EqualFold(s.RoomCode, a.Code) {
			return s
		}
		next := InitialState()
		next.Phase = PhaseBootstrapping
		next.RoomCode = a.Code
		return next

	case BootstrapSuccess:
		s.Phase = PhaseReady
		s.RoomCode = a.Code
		session := a.Session
		s.Session = &session
		s.RoomState = a.RoomState
		s.Participants = a.Participants
		s.LoadError = ""
		s.RoomError = ""
		s.LastAppliedVersion = a.RoomState.StateVersion
		return s

	case BootstrapFatal:
		s.Phase = PhaseFatal
		if a.Code != "" {
			s.RoomCode = a.Code
		}
		s.Session = nil
		s.LoadError = a.Error
		s.RoomError = ""
		return s

	case ChannelUp:
		s.Phase = PhaseReady
		s.RoomError = ""
		return s

	case ChannelDown:
		if s.Phase == PhaseReady {
			s.Phase = PhaseRecovering
		}
		s.RoomError = a.Error
		return s

	case SetRoomError:
		s.RoomError = a.Error
		return s

	case ClearRoomError:
		s.RoomError = ""
		return s

	case ApplySnapshot:
		snapshot := normalize.Snapshot(a.Payload, len(s.Participants))
		if snapshot.StateVersion < s.LastAppliedVersion {
			return s
		}
		s.RoomState = snapshot
		s.LastAppliedVersion = snapshot.StateVersion
		return s

	case SetParticipants:
		s.Participants = a.Participants
		s.RoomState.ParticipantCount = len(a.Participants)
		return s

	case ParticipantJoined:
		for _, p := range s.Participants {
			if p.Id == a.Participant.Id {
				return s
			}
		}
		participants := make([]domain.Participant, 0, len(s.Participants)+1)
		participants = append(participants, s.Participants...)
		participants = append(participants, a.Participant)
		s.Participants = participants
		s.RoomState.ParticipantCount = len(participants)
		return s

	case ParticipantLeft:
		participants := make([]domain.Participant, 0, len(s.Participants))
		for _, p := range s.Participants {
			if p.Id != a.ParticipantId {
				participants = append(participants, p)
			}
		}
		s.Participants = participants
		s.RoomState.ParticipantCount = len(participants)
		return s

	case SetQueue:
		s.RoomState.Queue = a.Queue
		return s

	default:
		return s
	}
}
