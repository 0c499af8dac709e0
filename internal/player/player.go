package player

// Player is the opaque handle to the embedded playback widget. Its internal
// state transitions are asynchronous and only loosely controllable; the
// controller treats every call as best-effort and re-checks on a cadence.
type Player interface {
	GetCurrentTime() float64
	SeekTo(seconds float64, allowSeekAhead bool)
	PlayVideo()
	PauseVideo()
	SetVolume(volume int)
	Mute()
	UnMute()
	// LoadVideoById switches the video inside the existing player instance so
	// a queue advance does not recreate the underlying widget.
	LoadVideoById(videoId string, startSeconds float64)
}

// Widget state-change codes, matching the embedded player's event values.
const (
	StateUnstarted = -1
	StateEnded     = 0
	StatePlaying   = 1
	StatePaused    = 2
	StateBuffering = 3
	StateCued      = 5
)
