// Package app wires the full client together: identity, bootstrap, realtime
// channel, playback controller, the local status server and the interactive
// command loop.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/chronoswatch/client/internal/api"
	"github.com/chronoswatch/client/internal/channel"
	"github.com/chronoswatch/client/internal/player"
	"github.com/chronoswatch/client/internal/room"
	"github.com/chronoswatch/client/internal/session"
	"github.com/chronoswatch/client/internal/status"
	"github.com/chronoswatch/client/pkg/ctxlogger"
	"github.com/chronoswatch/client/pkg/validator"
	"github.com/chronoswatch/client/pkg/videourl"
)

type AppConfig struct {
	ServerURL  string `json:"server_url" validate:"required"`
	RoomCode   string `json:"room_code" validate:"omitempty,max=12,alphanum"`
	Nickname   string `json:"nickname" validate:"required,max=16"`
	Create     bool   `json:"create"`
	LogLevel   string `json:"log_level"`
	SessionDir string `json:"session_dir"`
	StatusAddr string `json:"status_addr"`
}

func (cfg *AppConfig) Validate() error {
	if !cfg.Create && cfg.RoomCode == "" {
		return fmt.Errorf("room code is required unless creating a room")
	}
	if validationErrors, ok := validator.NewValidator().Validate(cfg); !ok {
		return fmt.Errorf("invalid config: %v", validationErrors)
	}
	return nil
}

// wsEndpoint derives the realtime endpoint from the REST base url.
func wsEndpoint(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}
	logger := slog.New(&h)

	sessionDir := cfg.SessionDir
	if sessionDir == "" {
		dir, err := session.DefaultDir()
		if err != nil {
			return err
		}
		sessionDir = dir
	}
	store := session.NewFileStore(sessionDir)
	resolver := session.NewResolver(store)

	apiClient := api.NewClient(cfg.ServerURL, logger)

	code := strings.ToUpper(cfg.RoomCode)
	var candidate session.Candidate
	if cfg.Create {
		createdCode, sess, err := apiClient.CreateRoom(ctx, cfg.Nickname)
		if err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		code = createdCode
		candidate = session.Candidate{
			Nickname:      sess.Nickname,
			ParticipantId: sess.ParticipantId,
			IsHost:        true,
		}
		logger.Info("room created", "code", code)
	} else if record, err := store.Load(); err != nil || !strings.EqualFold(record.RoomCode, code) {
		// no reusable identity for this room: register as a new participant
		sess, err := apiClient.JoinRoom(ctx, code, cfg.Nickname)
		if err != nil {
			return fmt.Errorf("failed to join room: %w", err)
		}
		candidate = session.Candidate{
			Nickname:      sess.Nickname,
			ParticipantId: sess.ParticipantId,
		}
		logger.Info("joined room", "code", code)
	}

	resolved, err := resolver.Resolve(code, candidate)
	if err != nil {
		return fmt.Errorf("failed to resolve session: %w", err)
	}

	wsURL, err := wsEndpoint(cfg.ServerURL)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var controller *player.Controller

	manager := room.NewManager(room.ManagerConfig{
		API:      apiClient,
		Sessions: resolver,
		NewChannel: func(roomCode, participantId string, events channel.Events) (room.Channel, error) {
			return channel.New(channel.Config{
				URL:           wsURL,
				RoomCode:      roomCode,
				ParticipantId: participantId,
				Events:        events,
				Logger:        logger,
				Clock:         clock,
			})
		},
		Logger: logger,
		Clock:  clock,
		NavigateHome: func() {
			logger.Info("leaving room view")
			stop()
		},
		OnChange: func(state room.State) {
			if controller == nil {
				return
			}
			switch state.Phase {
			case room.PhaseReady, room.PhaseRecovering:
				controller.Update(state.RoomState.CurrentVideo, state.RoomState.CurrentTime,
					state.RoomState.StateVersion, state.RoomState.IsPlaying)
			}
		},
	})

	controller = player.NewController(player.Config{
		IsHost: resolved.IsHost,
		Intents: player.Intents{
			OnSeek:  manager.Seek,
			OnSkip:  manager.Skip,
			OnPlay:  manager.Play,
			OnPause: manager.Pause,
		},
		Logger:        logger,
		Clock:         clock,
		InitialVolume: store.LoadVolume(),
		OnVolumeChanged: func(volume int) {
			if err := store.SaveVolume(volume); err != nil {
				logger.Debug("failed to persist volume", "err", err)
			}
		},
	})

	sim := player.NewSimulatedPlayer(clock, controller.PlayerStateChanged)
	controller.Attach(sim)
	controller.Start()
	defer controller.Stop()

	if cfg.StatusAddr != "" {
		statusServer := status.New(status.Config{
			Addr:     cfg.StatusAddr,
			Room:     manager,
			Playback: controller,
			Logger:   logger,
		})
		statusServer.Start()
		defer statusServer.Shutdown(context.Background())
	}

	if err := manager.Enter(runCtx, code, candidate); err != nil {
		return err
	}
	defer manager.Shutdown()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig
		stop()
	}()

	go commandLoop(runCtx, os.Stdin, manager, controller, logger, stop)

	slog.InfoContext(runCtx, "client running", "room", code, "nickname", resolved.Nickname, "host", resolved.IsHost)
	<-runCtx.Done()

	return nil
}

// commandLoop reads line commands from the terminal until the context ends.
func commandLoop(ctx context.Context, input *os.File, manager *room.Manager, controller *player.Controller, logger *slog.Logger, stop func()) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		switch fields[0] {
		case "play", "pause", "p":
			controller.TogglePlayback()
		case "seek":
			target, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			controller.BeginSeek(target)
			controller.CommitSeek()
		case "skip":
			controller.Skip()
		case "add":
			videoId, ok := videourl.Parse(arg)
			if !ok {
				fmt.Println("usage: add <video url or id>")
				continue
			}
			manager.AddVideo(videoId)
		case "remove":
			manager.RemoveVideo(arg)
		case "shuffle":
			manager.ShuffleQueue()
		case "clear":
			manager.ClearQueue()
		case "autoplay":
			manager.SetAutoplay(arg == "on")
		case "loop":
			manager.SetLoop(arg == "on")
		case "volume":
			v, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("usage: volume <0-100>")
				continue
			}
			controller.SetVolume(v)
		case "mute":
			controller.ToggleMute()
		case "sync":
			controller.VisibilityRegained()
		case "status":
			state := manager.Snapshot()
			fmt.Printf("phase=%s room=%s version=%d participants=%d time=%.1f\n",
				state.Phase, state.RoomCode, state.RoomState.StateVersion,
				state.RoomState.ParticipantCount, controller.DisplayTime())
		case "leave":
			manager.Leave()
			return
		case "quit", "exit":
			stop()
			return
		default:
			fmt.Println("commands: play pause seek skip add remove shuffle clear autoplay loop volume mute sync status leave quit")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("command input closed", "err", err)
	}
}
