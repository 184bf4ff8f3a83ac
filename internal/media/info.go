package media

import "fmt"

type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Info describes the current track. The zero value means no media.
type Info struct {
	PlayerName    string `json:"player_name"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	ArtURL        string `json:"art_url,omitempty"`
	Status        Status `json:"status"`
	PositionMs    uint64 `json:"position_ms"`
	DurationMs    uint64 `json:"duration_ms"`
	CanPlay       bool   `json:"can_play"`
	CanPause      bool   `json:"can_pause"`
	CanGoNext     bool   `json:"can_go_next"`
	CanGoPrevious bool   `json:"can_go_previous"`
	CanSeek       bool   `json:"can_seek"`
}

func (i Info) IsActive() bool {
	return i.PlayerName != "" && i.Title != ""
}

// PositionString formats the playback position as m:ss.
func (i Info) PositionString() string {
	return clock(i.PositionMs)
}

// DurationString formats the track length as m:ss.
func (i Info) DurationString() string {
	return clock(i.DurationMs)
}

// Progress returns position/duration in [0,1], or 0 for unknown durations.
func (i Info) Progress() float64 {
	if i.DurationMs == 0 {
		return 0
	}

	return min(float64(i.PositionMs)/float64(i.DurationMs), 1)
}

func clock(ms uint64) string {
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
