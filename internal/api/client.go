// Package api is the REST client for the watch-party backend: the one-shot
// room bootstrap fetch, the create/join flows, and the fire-and-forget health
// ping.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chronoswatch/client/internal/domain"
	"github.com/chronoswatch/client/internal/normalize"
	"github.com/chronoswatch/client/pkg/ctxlogger"
)

var (
	ErrRoomLoadFailed   = errors.New("failed to load room")
	ErrCreateRoomFailed = errors.New("failed to create room")
	ErrJoinRoomFailed   = errors.New("failed to join room")
)

// ServerError carries an error message the backend reported in a non-2xx body.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

// RoomBundle is the bootstrap response: the authoritative snapshot plus the
// current roster, both already normalized.
type RoomBundle struct {
	State        domain.RoomSnapshot
	Participants []domain.Participant
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	requestId := uuid.NewString()
	req.Header.Set("X-Request-Id", requestId)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", requestId))
	c.logger.DebugContext(ctx, "api request", "method", method, "path", path)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return raw, resp.StatusCode, nil
}

// serverError extracts the backend's {error} body when present; status >=500
// without one collapses to a generic unavailability message.
func serverError(raw []byte, statusCode int, fallback error) error {
	message := fallback.Error()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		message = body.Error
	} else if statusCode >= 500 {
		message = "Server unavailable. Please try again later."
	}
	return &ServerError{StatusCode: statusCode, Message: message}
}

// GetRoom performs the bootstrap fetch. The caller bounds it with a context
// deadline; hitting the deadline surfaces as context.DeadlineExceeded.
func (c *Client) GetRoom(ctx context.Context, code string) (RoomBundle, error) {
	raw, statusCode, err := c.do(ctx, http.MethodGet, "/api/rooms/"+strings.ToUpper(code), nil)
	if err != nil {
		return RoomBundle{}, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return RoomBundle{}, serverError(raw, statusCode, ErrRoomLoadFailed)
	}

	var payload struct {
		State        any `json:"state"`
		Participants any `json:"participants"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		// malformed body is normalized away, not fatal
		payload.State, payload.Participants = nil, nil
	}

	participants := normalize.Participants(payload.Participants)
	return RoomBundle{
		State:        normalize.Snapshot(payload.State, len(participants)),
		Participants: participants,
	}, nil
}

type joinResponse struct {
	RoomCode      string `json:"roomCode"`
	ParticipantId string `json:"participantId"`
}

// CreateRoom registers a new room and returns its code plus the host identity
// candidate to enter it with.
func (c *Client) CreateRoom(ctx context.Context, nickname string) (string, domain.Session, error) {
	raw, statusCode, err := c.do(ctx, http.MethodPost, "/api/rooms", map[string]string{"nickname": nickname})
	if err != nil {
		return "", domain.Session{}, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", domain.Session{}, serverError(raw, statusCode, ErrCreateRoomFailed)
	}

	var payload joinResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to decode create room response: %w", err)
	}
	if payload.RoomCode == "" || payload.ParticipantId == "" {
		return "", domain.Session{}, ErrCreateRoomFailed
	}

	return strings.ToUpper(payload.RoomCode), domain.Session{
		ParticipantId: payload.ParticipantId,
		Nickname:      nickname,
		IsHost:        true,
	}, nil
}

// JoinRoom registers the caller as a participant of an existing room.
func (c *Client) JoinRoom(ctx context.Context, code, nickname string) (domain.Session, error) {
	raw, statusCode, err := c.do(ctx, http.MethodPost, "/api/rooms/"+strings.ToUpper(code)+"/join", map[string]string{"nickname": nickname})
	if err != nil {
		return domain.Session{}, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return domain.Session{}, serverError(raw, statusCode, ErrJoinRoomFailed)
	}

	var payload joinResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Session{}, fmt.Errorf("failed to decode join room response: %w", err)
	}
	if payload.ParticipantId == "" {
		return domain.Session{}, ErrJoinRoomFailed
	}

	return domain.Session{
		ParticipantId: payload.ParticipantId,
		Nickname:      nickname,
		IsHost:        false,
	}, nil
}

// Health pings the backend so an idle free-tier deployment is not suspended.
// Errors are the caller's to ignore.
func (c *Client) Health(ctx context.Context) error {
	_, statusCode, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("health check returned status %d", statusCode)
	}
	return nil
}
