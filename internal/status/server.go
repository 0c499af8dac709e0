// Package status serves a local read-only HTTP view of the client: the room
// state machine and the playback readout, for debugging and shell tooling.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chronoswatch/client/internal/room"
	"github.com/chronoswatch/client/pkg/ctxlogger"
	"github.com/chronoswatch/client/pkg/rest"
)

type iRoom interface {
	Snapshot() room.State
}

type iPlayback interface {
	DisplayTime() float64
	Volume() int
}

type Config struct {
	Addr     string
	Room     iRoom
	Playback iPlayback
	Logger   *slog.Logger
}

type Server struct {
	httpServer *http.Server
	room       iRoom
	playback   iPlayback
	logger     *slog.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		room:     cfg.Room,
		playback: cfg.Playback,
		logger:   cfg.Logger,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.mux(),
	}
	return s
}

func (s *Server) mux() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIdMw)
	r.Use(s.requestLoggingMw)

	r.Get("/healthz", s.healthz)
	r.Get("/api/room", s.getRoom)
	r.Get("/api/playback", s.getPlayback)

	return r
}

func (s *Server) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ctxlogger.AppendCtx(r.Context(), slog.String("request_id", uuid.NewString()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.DebugContext(r.Context(), "status request",
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"status": "ok"})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": s.room.Snapshot()})
}

type playbackResponse struct {
	DisplayTime float64 `json:"displayTime"`
	Volume      int     `json:"volume"`
}

func (s *Server) getPlayback(w http.ResponseWriter, r *http.Request) {
	if s.playback == nil {
		rest.WriteJSON(w, http.StatusServiceUnavailable, rest.Envelope{"error": "playback not attached"})
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": playbackResponse{
		DisplayTime: s.playback.DisplayTime(),
		Volume:      s.playback.Volume(),
	}})
}

// Start serves until Shutdown; the listen error is reported through the
// logger since callers treat the status surface as best-effort.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "err", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
