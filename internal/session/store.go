package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var ErrRecordNotFound = errors.New("session record not found")

// Record is the persisted identity for the most recently entered room. A
// single app-wide slot holds at most one record.
type Record struct {
	RoomCode      string `json:"roomCode"`
	ParticipantId string `json:"participantId"`
	IsHost        bool   `json:"isHost"`
	Nickname      string `json:"nickname"`
}

// FileStore persists the session record and player volume under a directory,
// one value per file.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// DefaultDir resolves the per-user storage directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "chronos"), nil
}

func (s *FileStore) sessionPath() string {
	return filepath.Join(s.dir, "session.json")
}

// Load returns ErrRecordNotFound when no record exists. A record that fails to
// parse is treated as absent and removed so it cannot poison later entries.
func (s *FileStore) Load() (Record, error) {
	raw, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("failed to read session record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		_ = s.Clear()
		return Record{}, ErrRecordNotFound
	}

	return record, nil
}

func (s *FileStore) Save(record Record) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}

	if err := os.WriteFile(s.sessionPath(), raw, 0o600); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}

	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session record: %w", err)
	}
	return nil
}

func (s *FileStore) volumePath() string {
	return filepath.Join(s.dir, "volume")
}

// LoadVolume returns the persisted player volume clamped to 0-100, or 100 when
// no usable value is stored.
func (s *FileStore) LoadVolume() int {
	raw, err := os.ReadFile(s.volumePath())
	if err != nil {
		return 100
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 100
	}
	return min(100, max(0, v))
}

func (s *FileStore) SaveVolume(volume int) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(s.volumePath(), []byte(strconv.Itoa(volume)), 0o600); err != nil {
		return fmt.Errorf("failed to write volume: %w", err)
	}
	return nil
}
