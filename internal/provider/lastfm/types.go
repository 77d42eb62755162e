package lastfm

import "strconv"

// Last.fm API response types for user.getRecentTracks. The API wraps most
// scalar values in objects or returns them as strings.

type recentTracksResponse struct {
	RecentTracks struct {
		Attr  pageAttr   `json:"@attr"`
		Track []rawTrack `json:"track"`
	} `json:"recenttracks"`
	// Error fields are present on failure responses (HTTP 200 with a body).
	Error   int    `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type pageAttr struct {
	Page       string `json:"page"`
	TotalPages string `json:"totalPages"`
	Total      string `json:"total"`
}

type rawTrack struct {
	Name   string    `json:"name"`
	MBID   string    `json:"mbid"`
	Artist textMBID  `json:"artist"`
	Album  textMBID  `json:"album"`
	Date   *dateAttr `json:"date,omitempty"`
	Attr   *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr,omitempty"`
}

// textMBID is Last.fm's {"#text": ..., "mbid": ...} pair.
type textMBID struct {
	Text string `json:"#text"`
	MBID string `json:"mbid"`
}

type dateAttr struct {
	UTS string `json:"uts"`
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
