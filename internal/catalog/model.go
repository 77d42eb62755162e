// Package catalog holds the local mirror of resolved music entities and the
// resolver that populates it from the remote catalog.
package catalog

import "time"

// Album types as reported by the remote catalog's primary/secondary types.
const (
	AlbumTypeCompilation = "Compilation"
)

// Artist is a canonical artist entity keyed by MBID.
type Artist struct {
	MBID      string    `json:"mbid"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Album is a canonical album (release group) keyed by MBID.
type Album struct {
	MBID      string    `json:"mbid"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Artists   []Artist  `json:"artists,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsCompilation reports whether the album is a various-artists compilation.
// Compilations skip artist and track hydration: their credits are per-track
// and rarely useful for matching.
func (a Album) IsCompilation() bool {
	return a.Type == AlbumTypeCompilation
}

// Release is one concrete edition of an album. Every release belongs to
// exactly one album.
type Release struct {
	MBID      string    `json:"mbid"`
	AlbumMBID string    `json:"album_mbid"`
	CreatedAt time.Time `json:"created_at"`
}

// Song is a canonical recording keyed by MBID. DurationMS is -1 when the
// remote catalog did not report a length.
type Song struct {
	MBID       string    `json:"mbid"`
	Title      string    `json:"title"`
	DurationMS int64     `json:"duration_ms"`
	Artists    []Artist  `json:"artists,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
