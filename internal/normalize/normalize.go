// Package normalize converts untrusted server payloads into well-typed domain
// values. Every function accepts any value, never panics, and substitutes safe
// defaults field-by-field so a malformed backend response can never take the
// client down.
package normalize

import (
	"math"

	"github.com/chronoswatch/client/internal/domain"
)

func record(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func Number(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return fallback
		}
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func Bool(v any, fallback bool) bool {
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

func String(v any, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

func nonNegativeInt(v any, fallback float64) int {
	return int(math.Max(0, math.Floor(Number(v, fallback))))
}

// Video returns false when the record lacks a non-empty id, in which case the
// whole entry must be discarded by the caller.
func Video(input any) (domain.Video, bool) {
	m, ok := record(input)
	if !ok {
		return domain.Video{}, false
	}
	id := String(m["id"], "")
	if id == "" {
		return domain.Video{}, false
	}
	title := String(m["title"], "")
	if title == "" {
		title = "Video"
	}

	return domain.Video{
		Id:          id,
		Title:       title,
		Thumbnail:   String(m["thumbnail"], ""),
		Duration:    nonNegativeInt(m["duration"], 0),
		AddedBy:     String(m["addedBy"], ""),
		AddedAt:     String(m["addedAt"], ""),
		AddedByName: String(m["addedByName"], ""),
	}, true
}

// Videos filters a queue payload down to its valid entries. Invalid entries
// are dropped silently instead of failing the whole queue.
func Videos(input any) []domain.Video {
	items, ok := input.([]any)
	if !ok {
		return []domain.Video{}
	}
	videos := make([]domain.Video, 0, len(items))
	for _, item := range items {
		if video, ok := Video(item); ok {
			videos = append(videos, video)
		}
	}
	return videos
}

func quality(v any) domain.ConnectionQuality {
	switch q := domain.ConnectionQuality(String(v, "")); q {
	case domain.QualityExcellent, domain.QualityGood, domain.QualityFair, domain.QualityPoor:
		return q
	default:
		return domain.QualityUnknown
	}
}

// Participant requires both id and nickname; anything else is dropped from the
// roster.
func Participant(input any) (domain.Participant, bool) {
	m, ok := record(input)
	if !ok {
		return domain.Participant{}, false
	}
	id := String(m["id"], "")
	nickname := String(m["nickname"], "")
	if id == "" || nickname == "" {
		return domain.Participant{}, false
	}

	return domain.Participant{
		Id:         id,
		Nickname:   nickname,
		IsHost:     Bool(m["isHost"], false),
		IsActive:   Bool(m["isActive"], false),
		Connected:  Bool(m["connected"], false),
		Quality:    quality(m["quality"]),
		LatencyMs:  Number(m["latencyMs"], 0),
		JoinedAt:   String(m["joinedAt"], ""),
		LastPingAt: String(m["lastPingAt"], ""),
	}, true
}

func Participants(input any) []domain.Participant {
	items, ok := input.([]any)
	if !ok {
		return []domain.Participant{}
	}
	participants := make([]domain.Participant, 0, len(items))
	for _, item := range items {
		if participant, ok := Participant(item); ok {
			participants = append(participants, participant)
		}
	}
	return participants
}

func playbackState(v any) domain.PlaybackState {
	switch s := domain.PlaybackState(String(v, "")); s {
	case domain.PlaybackPlaying, domain.PlaybackPaused, domain.PlaybackEnded:
		return s
	default:
		return domain.PlaybackUnstarted
	}
}

// Snapshot normalizes a full room snapshot. participantCountFallback is used
// when the payload carries no usable participantCount, typically the current
// roster length.
func Snapshot(input any, participantCountFallback int) domain.RoomSnapshot {
	m, ok := record(input)
	if !ok {
		snapshot := domain.EmptySnapshot()
		snapshot.ParticipantCount = participantCountFallback
		return snapshot
	}

	var currentVideo *domain.Video
	if video, ok := Video(m["currentVideo"]); ok {
		currentVideo = &video
	}

	playback := playbackState(m["playbackState"])
	currentTime := math.Max(0, Number(m["currentTime"], 0))

	return domain.RoomSnapshot{
		CurrentVideo:     currentVideo,
		CurrentTime:      currentTime,
		AnchorPosition:   math.Max(0, Number(m["anchorPosition"], currentTime)),
		AnchorUpdatedAt:  String(m["anchorUpdatedAt"], ""),
		PlaybackState:    playback,
		SkipEpoch:        nonNegativeInt(m["skipEpoch"], 0),
		StateVersion:     nonNegativeInt(m["stateVersion"], 0),
		Queue:            Videos(m["queue"]),
		ParticipantCount: nonNegativeInt(m["participantCount"], float64(participantCountFallback)),
		IsPlaying:        Bool(m["isPlaying"], playback == domain.PlaybackPlaying),
		Autoplay:         Bool(m["autoplay"], false),
		Loop:             Bool(m["loop"], false),
	}
}
