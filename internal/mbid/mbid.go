// Package mbid handles canonical MusicBrainz identifiers and the redirect
// table that tracks ids renamed or merged upstream.
package mbid

// IsMBID reports whether s has the shape of a MusicBrainz identifier
// (36-character lowercase-hex UUID with dashes).
func IsMBID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
				return false
			}
		}
	}
	return true
}
