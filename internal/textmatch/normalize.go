// Package textmatch canonicalizes free-text titles and names and scores
// string similarity for entity matching.
package textmatch

import (
	"regexp"
	"strings"
)

var (
	// bracketed matches parenthetical or bracketed qualifiers like
	// "(Remastered)" or "[Deluxe Edition]".
	bracketed = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)

	// trailingQualifier matches suffixes like " - Live" or " - 2009 Remaster".
	trailingQualifier = regexp.MustCompile(`\s+-\s+[^-]*\b(live|remastered?|remaster)\b.*$`)

	// partSegment matches "part <n>" with a numeric or roman numeral.
	partSegment = regexp.MustCompile(`\bpart\s+(\d+|[ivxlcdm]+)\b`)

	// nonAlphanumeric matches everything that is not a letter or digit.
	nonAlphanumeric = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	multiSpace = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a free-text title or name for comparison:
// lowercase, strip bracketed qualifiers and trailing live/remaster suffixes,
// drop apostrophes, replace remaining punctuation with spaces, collapse runs
// of three or more repeated characters to two, remove "Part N" segments, and
// collapse whitespace.
//
// An empty result means the input had no usable text; comparisons against it
// must never match.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = bracketed.ReplaceAllString(s, " ")
	s = trailingQualifier.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	s = collapseRuns(s)
	s = partSegment.ReplaceAllString(s, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// collapseRuns reduces any run of three or more identical runes to two.
func collapseRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// featSuffix matches a featured-artist suffix on an artist name.
var featSuffix = regexp.MustCompile(`(?i)\s+(feat\.?|featuring|ft\.?)\s+.*$`)

// StripFeat removes a trailing "feat. ..." qualifier from an artist name.
func StripFeat(name string) string {
	return strings.TrimSpace(featSuffix.ReplaceAllString(name, ""))
}

// albumQualifiers matches edition/version/disc qualifiers appended to album
// titles, either bracketed or after a dash.
var albumQualifiers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*[(\[][^)\]]*\b(edition|version|deluxe|bonus|disc|remaster(ed)?|ep)\b[^)\]]*[)\]]`),
	regexp.MustCompile(`(?i)\s+-\s+[^-]*\b(edition|version|deluxe|disc \d+|remaster(ed)?)\b.*$`),
	regexp.MustCompile(`(?i)\s+ep$`),
}

// StripAlbumQualifiers removes edition, version, disc and EP qualifiers from
// an album title before matching it against catalog titles.
func StripAlbumQualifiers(title string) string {
	for _, re := range albumQualifiers {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}
