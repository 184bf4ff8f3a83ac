package media

import (
	"strconv"
	"strings"
)

const (
	keyTitle    = `"name":"`
	keyArtist   = `"artistName":"`
	keyAlbum    = `"albumName":"`
	keyArtURL   = `"url":"`
	keyDuration = `"durationInMillis":`
	keyPosition = `"currentPlaybackTime":`

	markerOK      = `"status":"ok"`
	markerError   = `"error"`
	markerPlaying = `"is_playing":true`
)

// Parse builds Info from a now-playing response by key search. Each key is
// matched at its first occurrence; string values run to the next quote and
// numbers to the next ',', '}' or ']'. It reports false when the response is
// an error, not ok, or carries no title.
func Parse(body string, playing bool, player string) (Info, bool) {
	if strings.Contains(body, markerError) || !strings.Contains(body, markerOK) {
		return Info{}, false
	}

	info := Info{
		PlayerName:    player,
		Status:        StatusPaused,
		CanPlay:       true,
		CanPause:      true,
		CanGoNext:     true,
		CanGoPrevious: true,
		CanSeek:       true,
	}
	if playing {
		info.Status = StatusPlaying
	}

	info.Title, _ = extractString(body, keyTitle)
	info.Artist, _ = extractString(body, keyArtist)
	info.Album, _ = extractString(body, keyAlbum)
	info.ArtURL, _ = extractString(body, keyArtURL)

	if v, ok := extractNumber(body, keyDuration); ok {
		if d, err := strconv.ParseUint(v, 10, 64); err == nil {
			info.DurationMs = d
		}
	}
	if v, ok := extractNumber(body, keyPosition); ok {
		if p, err := strconv.ParseFloat(v, 64); err == nil && p > 0 {
			info.PositionMs = uint64(p * 1000)
		}
	}

	if info.Title == "" {
		return Info{}, false
	}

	return info, true
}

// IsPlaying interprets an is-playing response.
func IsPlaying(body string) bool {
	return strings.Contains(body, markerPlaying)
}

func extractString(body, key string) (string, bool) {
	i := strings.Index(body, key)
	if i < 0 {
		return "", false
	}

	rest := body[i+len(key):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}

	return rest[:end], true
}

func extractNumber(body, key string) (string, bool) {
	i := strings.Index(body, key)
	if i < 0 {
		return "", false
	}

	rest := body[i+len(key):]
	end := strings.IndexAny(rest, ",}]")
	if end < 0 {
		return "", false
	}

	return strings.TrimSpace(rest[:end]), true
}
