package musicbrainz

// MusicBrainz ws/2 JSON response types, limited to the fields the resolver
// and repair passes consume.

// Artist represents a MusicBrainz artist entity.
type Artist struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Score   int     `json:"score,omitempty"`
	Aliases []Alias `json:"aliases,omitempty"`
}

// Alias is an alternative name for an artist.
type Alias struct {
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
	Type     string `json:"type"`
}

// ArtistCredit links an entity to one credited artist.
type ArtistCredit struct {
	Name   string `json:"name"`
	Artist Artist `json:"artist"`
}

// ReleaseGroup represents a MusicBrainz release group (an album).
type ReleaseGroup struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	PrimaryType    string         `json:"primary-type"`
	SecondaryTypes []string       `json:"secondary-types,omitempty"`
	Score          int            `json:"score,omitempty"`
	ArtistCredits  []ArtistCredit `json:"artist-credit,omitempty"`
}

// Release represents one concrete edition of an album.
type Release struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	ReleaseGroups []ReleaseGroup `json:"release-groups,omitempty"`
	// ReleaseGroup is set on lookup responses; search/browse responses use
	// the plural form above.
	ReleaseGroup *ReleaseGroup `json:"release-group,omitempty"`
	Media        []Medium      `json:"media,omitempty"`
}

// Medium is one disc (or equivalent) of a release.
type Medium struct {
	Position int     `json:"position"`
	Tracks   []Track `json:"tracks,omitempty"`
}

// Track is one track on a medium, wrapping its recording.
type Track struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Recording Recording `json:"recording"`
}

// Recording represents a MusicBrainz recording (a song).
type Recording struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Length        int            `json:"length,omitempty"` // milliseconds; 0 when unknown
	Score         int            `json:"score,omitempty"`
	ArtistCredits []ArtistCredit `json:"artist-credit,omitempty"`
	Releases      []Release      `json:"releases,omitempty"`
}

// releaseBrowseResponse is the top-level release browse payload.
type releaseBrowseResponse struct {
	Count    int       `json:"release-count"`
	Releases []Release `json:"releases"`
}

// artistSearchResponse is the top-level artist search payload.
type artistSearchResponse struct {
	Count   int      `json:"count"`
	Artists []Artist `json:"artists"`
}

// releaseGroupSearchResponse is the top-level release-group search payload.
type releaseGroupSearchResponse struct {
	Count         int            `json:"count"`
	ReleaseGroups []ReleaseGroup `json:"release-groups"`
}

// recordingSearchResponse is the top-level recording search payload.
type recordingSearchResponse struct {
	Count      int         `json:"count"`
	Recordings []Recording `json:"recordings"`
}
