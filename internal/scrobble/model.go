// Package scrobble stores the raw listening history and pulls it down from
// the remote history service.
package scrobble

import (
	"encoding/json"
	"time"
)

// Scrobble is one played track as reported by the history service. The three
// title fields keep the service's free text verbatim; the MBID fields start
// empty unless the service supplied trusted ids, and are filled in later by
// the repair passes.
type Scrobble struct {
	ID             string          `json:"id"`
	PlayedAt       time.Time       `json:"played_at"`
	SongTitle      string          `json:"song_title"`
	AlbumTitle     string          `json:"album_title"`
	ArtistName     string          `json:"artist_name"`
	SongMBID       string          `json:"song_mbid,omitempty"`
	AlbumMBID      string          `json:"album_mbid,omitempty"`
	ArtistMBID     string          `json:"artist_mbid,omitempty"`
	Resolved       bool            `json:"resolved"`
	RepairAttempts int             `json:"repair_attempts"`
	RawPayload     json.RawMessage `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outstanding counts the records each repair pass still has to look at.
type Outstanding struct {
	Songs   int `json:"songs"`
	Artists int `json:"artists"`
	Albums  int `json:"albums"`
}
