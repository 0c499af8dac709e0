// Package session resolves and persists the caller's identity for a room.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chronoswatch/client/internal/domain"
)

var ErrNoSession = errors.New("no session for room")

// Candidate is the navigation-carried identity handed over from a create or
// join flow. It takes priority over the persisted record when complete.
type Candidate struct {
	Nickname      string
	ParticipantId string
	IsHost        bool
}

type iStore interface {
	Load() (Record, error)
	Save(Record) error
	Clear() error
}

type Resolver struct {
	store iStore
}

func NewResolver(store iStore) *Resolver {
	return &Resolver{store: store}
}

// Clear drops the persisted record, e.g. after an intentional leave.
func (r *Resolver) Clear() error {
	return r.store.Clear()
}

// Resolve produces the session for roomCode, preferring the candidate, then a
// persisted record for the same (case-insensitive) room code. A successful
// resolution refreshes the stored record exactly once; failure never writes.
func (r *Resolver) Resolve(roomCode string, candidate Candidate) (domain.Session, error) {
	nickname := candidate.Nickname
	participantId := candidate.ParticipantId
	isHost := candidate.IsHost

	if nickname == "" || participantId == "" {
		record, err := r.store.Load()
		if err == nil && strings.EqualFold(record.RoomCode, roomCode) {
			nickname = record.Nickname
			participantId = record.ParticipantId
			isHost = record.IsHost
		}
	}

	if nickname == "" || participantId == "" {
		return domain.Session{}, ErrNoSession
	}

	if err := r.store.Save(Record{
		RoomCode:      strings.ToUpper(roomCode),
		ParticipantId: participantId,
		IsHost:        isHost,
		Nickname:      nickname,
	}); err != nil {
		return domain.Session{}, fmt.Errorf("failed to persist session: %w", err)
	}

	return domain.Session{
		ParticipantId: participantId,
		Nickname:      nickname,
		IsHost:        isHost,
	}, nil
}
