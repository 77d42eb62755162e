package textmatch

import (
	"strings"

	"github.com/xrash/smetrics"
)

// Acceptance thresholds for the two matcher presets. The fuzzy threshold is
// the tunable "same entity" cutoff used during repair; the strict threshold
// accepts only textual equality modulo noise.
const (
	FuzzyThreshold  = 0.80
	StrictThreshold = 0.98
)

// replacement rewrites one string fragment before normalization. The table is
// ordered: entries apply top to bottom.
type replacement struct {
	from, to string
}

// replacements maps special Unicode punctuation, ligatures, and common
// mojibake onto their plain equivalents. Applied only by the fuzzy preset.
var replacements = []replacement{
	{"â€¦", "..."}, // UTF-8 ellipsis decoded as Windows-1252
	{"…", "..."},             // ellipsis
	{"‘", "'"},               // left single quote
	{"’", "'"},               // right single quote
	{"“", `"`},               // left double quote
	{"”", `"`},               // right double quote
	{"–", "-"},               // en dash
	{"—", "-"},               // em dash
	{"×", "x"},               // multiplication sign
	{"ﬁ", "fi"},              // fi ligature
	{"ﬂ", "fl"},              // fl ligature
	{"æ", "ae"},
	{"œ", "oe"},
}

// Matcher scores similarity between two strings using Jaro-Winkler distance
// over their normalized forms.
type Matcher struct {
	threshold    float64
	replacements []replacement
}

// Fuzzy returns the standard matcher preset: the Unicode replacement table is
// applied before normalization and scores at or above threshold count as a
// match. Pass FuzzyThreshold unless configured otherwise.
func Fuzzy(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = FuzzyThreshold
	}
	return &Matcher{threshold: threshold, replacements: replacements}
}

// Strict returns the high-confidence preset: no replacement table, and only
// near-identical normalized strings match.
func Strict() *Matcher {
	return &Matcher{threshold: StrictThreshold}
}

// Threshold returns the matcher's acceptance score.
func (m Matcher) Threshold() float64 { return m.threshold }

// Score returns the Jaro-Winkler distance between the normalized forms of a
// and b. Returns 0 when either side normalizes to nothing.
func (m Matcher) Score(a, b string) float64 {
	na := Normalize(m.replace(a))
	nb := Normalize(m.replace(b))
	if na == "" || nb == "" {
		return 0
	}
	return smetrics.JaroWinkler(na, nb, 0.7, 4)
}

// Similar reports whether a and b refer to the same entity under this
// preset's threshold. Unusable input on either side never matches.
func (m Matcher) Similar(a, b string) bool {
	return m.Score(a, b) >= m.threshold
}

func (m Matcher) replace(s string) string {
	for _, r := range m.replacements {
		s = strings.ReplaceAll(s, r.from, r.to)
	}
	return s
}
