package player

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SimulatedPlayer stands in for the embedded widget in headless runs. Playback
// position advances with the clock while playing; there is no real media.
type SimulatedPlayer struct {
	mu sync.Mutex

	clock         clockwork.Clock
	onStateChange func(state int)

	videoId string
	playing bool
	volume  int
	muted   bool

	// media position at the anchor instant; the live position is derived from
	// the elapsed clock time while playing
	base   float64
	anchor time.Time
}

func NewSimulatedPlayer(clock clockwork.Clock, onStateChange func(state int)) *SimulatedPlayer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SimulatedPlayer{
		clock:         clock,
		onStateChange: onStateChange,
		volume:        100,
		anchor:        clock.Now(),
	}
}

func (p *SimulatedPlayer) GetCurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *SimulatedPlayer) positionLocked() float64 {
	if !p.playing {
		return p.base
	}
	return p.base + p.clock.Since(p.anchor).Seconds()
}

func (p *SimulatedPlayer) SeekTo(seconds float64, _ bool) {
	p.mu.Lock()
	p.base = seconds
	p.anchor = p.clock.Now()
	p.mu.Unlock()
}

func (p *SimulatedPlayer) PlayVideo() {
	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.anchor = p.clock.Now()
	p.mu.Unlock()
	p.emit(StatePlaying)
}

func (p *SimulatedPlayer) PauseVideo() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.base = p.positionLocked()
	p.playing = false
	p.mu.Unlock()
	p.emit(StatePaused)
}

func (p *SimulatedPlayer) SetVolume(volume int) {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
}

func (p *SimulatedPlayer) Mute() {
	p.mu.Lock()
	p.muted = true
	p.mu.Unlock()
}

func (p *SimulatedPlayer) UnMute() {
	p.mu.Lock()
	p.muted = false
	p.mu.Unlock()
}

func (p *SimulatedPlayer) LoadVideoById(videoId string, startSeconds float64) {
	p.mu.Lock()
	p.videoId = videoId
	p.base = startSeconds
	p.anchor = p.clock.Now()
	playing := p.playing
	p.mu.Unlock()
	if playing {
		p.emit(StatePlaying)
	} else {
		p.emit(StateCued)
	}
}

// VideoId reports the currently loaded video.
func (p *SimulatedPlayer) VideoId() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.videoId
}

func (p *SimulatedPlayer) emit(state int) {
	if p.onStateChange != nil {
		p.onStateChange(state)
	}
}
