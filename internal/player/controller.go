// Package player reconciles a local, independently-clocked media player
// against the authoritative room state while the user may be scrubbing and
// the player emits spurious events of its own.
package player

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/chronoswatch/client/internal/domain"
)

const (
	// loose tolerances for the periodic pass, wide enough to ride out
	// ordinary buffering jitter without seek churn
	driftToleranceSec     = 1.0
	pauseSyncToleranceSec = 0.2

	// strict tolerances applied right after an authoritative transition
	strictPlayingToleranceSec = 0.25
	strictPausedToleranceSec  = 0.05

	correctionInterval = 400 * time.Millisecond

	// window during which an applied pause is re-asserted against the player
	// resuming on its own, e.g. after buffering
	pauseEnforceWindow = 5 * time.Second
)

// Intents are the effect-producing callbacks a host interaction triggers.
// Non-host interactions never invoke them.
type Intents struct {
	OnSeek  func(targetTime float64)
	OnSkip  func()
	OnPlay  func()
	OnPause func()
}

type Config struct {
	IsHost  bool
	Intents Intents
	Logger  *slog.Logger
	Clock   clockwork.Clock
	// InitialVolume is clamped to 0-100; OnVolumeChanged observes persisted
	// volume updates.
	InitialVolume   int
	OnVolumeChanged func(volume int)
}

// Controller drives a Player toward the authoritative (time, playing) state.
type Controller struct {
	mu sync.Mutex

	player  Player
	isHost  bool
	intents Intents
	logger  *slog.Logger
	clock   clockwork.Clock

	// authoritative targets, refreshed on every snapshot update
	video        *domain.Video
	currentTime  float64
	stateVersion int
	isPlaying    bool

	// non-nil only while the user drags the position control; all
	// authoritative corrections are suspended until the drag commits
	seeking *float64

	// local display time for the host's own progress readout while playing
	displayTime float64

	// applied-transition dedup: videoId|playing|version
	transitionKey     string
	pauseEnforceUntil time.Time

	volume            int
	lastNonZeroVolume int
	onVolumeChanged   func(int)

	stopTicker chan struct{}
}

func NewController(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	volume := min(100, max(0, cfg.InitialVolume))
	lastNonZero := volume
	if lastNonZero == 0 {
		lastNonZero = 100
	}

	return &Controller{
		isHost:            cfg.IsHost,
		intents:           cfg.Intents,
		logger:            cfg.Logger,
		clock:             clock,
		volume:            volume,
		lastNonZeroVolume: lastNonZero,
		onVolumeChanged:   cfg.OnVolumeChanged,
	}
}

// Attach hands the ready player instance to the controller and forces an
// immediate strict reconciliation.
func (c *Controller) Attach(p Player) {
	c.mu.Lock()
	c.player = p
	p.SetVolume(c.volume)
	c.applyAuthoritativeLocked(true)
	c.mu.Unlock()
}

// Start runs the periodic correction pass until Stop.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.stopTicker != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.stopTicker = stop
	c.mu.Unlock()

	ticker := c.clock.NewTicker(correctionInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				c.correctionPass()
			}
		}
	}()
}

func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopTicker != nil {
		close(c.stopTicker)
		c.stopTicker = nil
	}
}

// Update feeds the latest authoritative state into the controller. It applies
// a strict correction at most once per (video, playing, version) transition.
func (c *Controller) Update(video *domain.Video, currentTime float64, stateVersion int, isPlaying bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	videoChanged := c.videoIdLocked() != videoId(video)

	c.currentTime = currentTime
	c.stateVersion = stateVersion
	c.isPlaying = isPlaying

	if videoChanged {
		// queue advance: reset per-video transient state and swap the video
		// inside the existing player instance
		c.seeking = nil
		c.displayTime = currentTime
		c.transitionKey = ""
		c.video = cloneVideo(video)
		if c.player != nil && video != nil {
			c.player.LoadVideoById(video.Id, currentTime)
		}
	} else {
		c.video = cloneVideo(video)
		if !c.isHost || !isPlaying || c.seeking != nil {
			c.displayTime = currentTime
		}
	}

	if c.seeking != nil {
		return
	}

	key := fmt.Sprintf("%s:%t:%d", videoId(video), isPlaying, stateVersion)
	if key == c.transitionKey {
		// same authoritative transition: the loose periodic pass handles any
		// residual drift
		c.applyCorrectionLocked(looseTolerance(isPlaying))
		return
	}
	c.transitionKey = key
	if isPlaying {
		c.pauseEnforceUntil = time.Time{}
	} else {
		c.pauseEnforceUntil = c.clock.Now().Add(pauseEnforceWindow)
	}
	c.applyAuthoritativeLocked(true)
}

func (c *Controller) correctionPass() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.player == nil || c.seeking != nil {
		return
	}
	if !c.isPlaying {
		if !c.clock.Now().After(c.pauseEnforceUntil) {
			c.applyAuthoritativeLocked(true)
		}
		return
	}
	c.displayTime = c.player.GetCurrentTime()
	c.applyAuthoritativeLocked(false)
}

// VisibilityRegained forces a strict re-application; the player may have
// drifted or been suspended while the view was hidden.
func (c *Controller) VisibilityRegained() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionKey = ""
	c.applyAuthoritativeLocked(true)
}

// PlayerStateChanged reacts to the widget's own transitions; unstarted,
// paused and cued states trigger a strict re-check since the player may have
// wandered off the authoritative state on its own.
func (c *Controller) PlayerStateChanged(state int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch state {
	case StateUnstarted, StatePaused, StateCued:
		if c.seeking != nil {
			return
		}
		c.applyAuthoritativeLocked(true)
	}
}

// BeginSeek starts a local scrub. While seeking is active only the local UI
// reflects the value and all authoritative corrections are suspended. Non-host
// scrubs are inert.
func (c *Controller) BeginSeek(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isHost {
		return
	}
	v := value
	c.seeking = &v
}

// CommitSeek ends the scrub: clamp, hard-seek the player, re-assert the local
// play/pause intent so the seek does not flip playback, emit the seek intent,
// then lift the correction suspension.
func (c *Controller) CommitSeek() {
	c.mu.Lock()
	if c.seeking == nil {
		c.mu.Unlock()
		return
	}
	target := max(0, min(c.durationLocked(), *c.seeking))
	if c.player != nil {
		c.player.SeekTo(target, true)
		if c.isPlaying {
			c.player.PlayVideo()
		} else {
			c.player.PauseVideo()
		}
	}
	c.displayTime = target
	onSeek := c.intents.OnSeek
	c.seeking = nil
	c.mu.Unlock()

	if onSeek != nil {
		onSeek(target)
	}
}

// TogglePlayback is the play/pause surface interaction. Only host-originated
// transitions are effect-producing.
func (c *Controller) TogglePlayback() {
	c.mu.Lock()
	if !c.isHost {
		c.mu.Unlock()
		return
	}
	playing := c.isPlaying
	c.mu.Unlock()

	if playing {
		if c.intents.OnPause != nil {
			c.intents.OnPause()
		}
	} else {
		if c.intents.OnPlay != nil {
			c.intents.OnPlay()
		}
	}
}

func (c *Controller) Skip() {
	c.mu.Lock()
	host := c.isHost
	c.mu.Unlock()
	if !host {
		return
	}
	if c.intents.OnSkip != nil {
		c.intents.OnSkip()
	}
}

// DisplayTime is the progress value to render: the in-flight scrub position,
// else the host's local display time while playing, else the authoritative
// time.
func (c *Controller) DisplayTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seeking != nil {
		return *c.seeking
	}
	if c.isHost && c.isPlaying {
		return c.displayTime
	}
	return c.currentTime
}

func (c *Controller) SetVolume(volume int) {
	c.mu.Lock()
	v := min(100, max(0, volume))
	c.volume = v
	if v > 0 {
		c.lastNonZeroVolume = v
	}
	if c.player != nil {
		c.player.SetVolume(v)
	}
	onChanged := c.onVolumeChanged
	c.mu.Unlock()

	if onChanged != nil {
		onChanged(v)
	}
}

func (c *Controller) ToggleMute() {
	c.mu.Lock()
	var next int
	if c.volume > 0 {
		next = 0
	} else {
		next = c.lastNonZeroVolume
	}
	c.mu.Unlock()
	c.SetVolume(next)
}

func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func looseTolerance(playing bool) float64 {
	if playing {
		return driftToleranceSec
	}
	return pauseSyncToleranceSec
}

func strictTolerance(playing bool) float64 {
	if playing {
		return strictPlayingToleranceSec
	}
	return strictPausedToleranceSec
}

// applyCorrectionLocked seeks only when the player has drifted beyond
// tolerance; within tolerance it issues no call at all.
func (c *Controller) applyCorrectionLocked(tolerance float64) {
	if c.player == nil || c.video == nil {
		return
	}
	drift := c.player.GetCurrentTime() - c.currentTime
	if math.Abs(drift) > tolerance {
		c.logger.Debug("correcting drift", "drift", drift, "target", c.currentTime)
		c.player.SeekTo(c.currentTime, true)
	}
}

// applyAuthoritativeLocked corrects drift then unconditionally matches the
// play/pause state; both player calls are idempotent.
func (c *Controller) applyAuthoritativeLocked(strict bool) {
	if c.player == nil || c.video == nil {
		return
	}
	tolerance := looseTolerance(c.isPlaying)
	if strict {
		tolerance = strictTolerance(c.isPlaying)
	}
	c.applyCorrectionLocked(tolerance)
	if c.isPlaying {
		c.player.PlayVideo()
	} else {
		c.player.PauseVideo()
	}
}

func (c *Controller) videoIdLocked() string {
	return videoId(c.video)
}

func (c *Controller) durationLocked() float64 {
	if c.video == nil {
		return 0
	}
	return float64(c.video.Duration)
}

func videoId(v *domain.Video) string {
	if v == nil {
		return ""
	}
	return v.Id
}

func cloneVideo(v *domain.Video) *domain.Video {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
