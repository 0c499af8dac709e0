package room

// Outbound intents. Every control intent rides in a nested envelope:
// {type:"control", payload:{type:"play", payload:{...}}}. Sends while the
// channel is down are dropped; the post-reconnect state refresh makes the
// server state authoritative again anyway.

type controlMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type seekPayload struct {
	TargetTime float64 `json:"targetTime"`
}

type enabledPayload struct {
	Enabled bool `json:"enabled"`
}

type videoPayload struct {
	VideoId string `json:"videoId"`
}

type playlistPayload struct {
	PlaylistId string `json:"playlistId"`
}

type reorderPayload struct {
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

func (m *Manager) send(messageType string, payload any) {
	m.mu.Lock()
	ch := m.channel
	m.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Send(messageType, payload); err != nil {
		m.logger.Debug("failed to send intent", "type", messageType, "err", err)
	}
}

func (m *Manager) sendControl(controlType string, payload any) {
	m.send("control", controlMessage{Type: controlType, Payload: payload})
}

func (m *Manager) Play() {
	m.sendControl("play", nil)
}

func (m *Manager) Pause() {
	m.sendControl("pause", nil)
}

func (m *Manager) Seek(targetTime float64) {
	m.sendControl("seek", seekPayload{TargetTime: targetTime})
}

func (m *Manager) Skip() {
	m.sendControl("skip", nil)
}

func (m *Manager) SetAutoplay(enabled bool) {
	m.sendControl("set_autoplay", enabledPayload{Enabled: enabled})
}

func (m *Manager) SetLoop(enabled bool) {
	m.sendControl("set_loop", enabledPayload{Enabled: enabled})
}

func (m *Manager) ShuffleQueue() {
	m.sendControl("shuffle_queue", nil)
}

func (m *Manager) AddVideo(videoId string) {
	m.send("add_video", videoPayload{VideoId: videoId})
}

func (m *Manager) AddPlaylist(playlistId string) {
	m.send("add_playlist", playlistPayload{PlaylistId: playlistId})
}

func (m *Manager) RemoveVideo(videoId string) {
	m.send("remove_video", videoPayload{VideoId: videoId})
}

func (m *Manager) ReorderQueue(fromIndex, toIndex int) {
	m.send("reorder_queue", reorderPayload{FromIndex: fromIndex, ToIndex: toIndex})
}

func (m *Manager) ClearQueue() {
	m.send("clear_queue", struct{}{})
}
