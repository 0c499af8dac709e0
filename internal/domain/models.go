package domain

type PlaybackState string

const (
	PlaybackUnstarted PlaybackState = "unstarted"
	PlaybackPlaying   PlaybackState = "playing"
	PlaybackPaused    PlaybackState = "paused"
	PlaybackEnded     PlaybackState = "ended"
)

type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityFair      ConnectionQuality = "fair"
	QualityPoor      ConnectionQuality = "poor"
	QualityUnknown   ConnectionQuality = "unknown"
)

type Video struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Thumbnail   string `json:"thumbnail"`
	Duration    int    `json:"duration"`
	AddedBy     string `json:"addedBy"`
	AddedAt     string `json:"addedAt"`
	AddedByName string `json:"addedByName"`
}

type Participant struct {
	Id         string            `json:"id"`
	Nickname   string            `json:"nickname"`
	IsHost     bool              `json:"isHost"`
	IsActive   bool              `json:"isActive"`
	Connected  bool              `json:"connected"`
	Quality    ConnectionQuality `json:"quality"`
	LatencyMs  float64           `json:"latencyMs"`
	JoinedAt   string            `json:"joinedAt"`
	LastPingAt string            `json:"lastPingAt"`
}

// RoomSnapshot is the server-authoritative view of a room. StateVersion is the
// sole ordering authority: a snapshot must never be applied over one with a
// higher version.
type RoomSnapshot struct {
	CurrentVideo     *Video        `json:"currentVideo"`
	CurrentTime      float64       `json:"currentTime"`
	AnchorPosition   float64       `json:"anchorPosition"`
	AnchorUpdatedAt  string        `json:"anchorUpdatedAt"`
	PlaybackState    PlaybackState `json:"playbackState"`
	SkipEpoch        int           `json:"skipEpoch"`
	StateVersion     int           `json:"stateVersion"`
	Queue            []Video       `json:"queue"`
	ParticipantCount int           `json:"participantCount"`
	IsPlaying        bool          `json:"isPlaying"`
	Autoplay         bool          `json:"autoplay"`
	Loop             bool          `json:"loop"`
}

// EmptySnapshot is the pre-sync placeholder a room starts from.
func EmptySnapshot() RoomSnapshot {
	return RoomSnapshot{
		CurrentVideo:     nil,
		CurrentTime:      0,
		PlaybackState:    PlaybackUnstarted,
		SkipEpoch:        0,
		StateVersion:     0,
		Queue:            []Video{},
		ParticipantCount: 1,
		IsPlaying:        false,
		Autoplay:         false,
		Loop:             false,
	}
}

// Session is the local identity for one room entry. It is immutable for the
// lifetime of the room view.
type Session struct {
	ParticipantId string `json:"participantId"`
	Nickname      string `json:"nickname"`
	IsHost        bool   `json:"isHost"`
}
