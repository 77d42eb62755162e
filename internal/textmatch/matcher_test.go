package textmatch

import "testing"

// The repair passes share one preset by pointer; the constructors must
// return one.
var (
	_ *Matcher = Fuzzy(FuzzyThreshold)
	_ *Matcher = Strict()
)

func TestSimilar_Reflexive(t *testing.T) {
	m := Fuzzy(FuzzyThreshold)
	for _, s := range []string{"a", "Get Lucky", "Daft Punk", "Echoes, Part II (Live)"} {
		if !m.Similar(s, s) {
			t.Errorf("Similar(%q, %q) = false, want true", s, s)
		}
	}
}

func TestSimilar_EmptyNeverMatches(t *testing.T) {
	m := Fuzzy(FuzzyThreshold)
	// Both sides normalize to nothing; unusable input must never match.
	if m.Similar("()!!!", "()!!!") {
		t.Error("Similar on unusable input = true, want false")
	}
	if m.Similar("", "") {
		t.Error("Similar on empty input = true, want false")
	}
	if m.Similar("Get Lucky", "") {
		t.Error("Similar against empty input = true, want false")
	}
}

func TestSimilar_FuzzyAcceptsNoise(t *testing.T) {
	m := Fuzzy(FuzzyThreshold)
	tests := []struct {
		a, b string
		want bool
	}{
		{"Get Lucky (Radio Edit)", "Get Lucky", true},
		{"One More Timeâ€¦", "One More Time…", true},
		{"Harder Better Faster Stronger", "Harder, Better, Faster, Stronger", true},
		{"Don’t Stop Me Now", "Don't Stop Me Now", true},
		{"Get Lucky", "Lose Yourself to Dance", false},
	}
	for _, tt := range tests {
		if got := m.Similar(tt.a, tt.b); got != tt.want {
			t.Errorf("Similar(%q, %q) = %v, want %v (score %f)",
				tt.a, tt.b, got, tt.want, m.Score(tt.a, tt.b))
		}
	}
}

func TestSimilar_StrictRejectsNearMisses(t *testing.T) {
	strict := Strict()
	if !strict.Similar("Get Lucky", "get lucky") {
		t.Error("strict should accept case-only differences")
	}
	if strict.Similar("Get Lucky", "Get Luckier Tonight") {
		t.Error("strict should reject different titles")
	}
}

func TestFuzzy_ThresholdFallback(t *testing.T) {
	m := Fuzzy(0)
	if m.Threshold() != FuzzyThreshold {
		t.Errorf("Threshold = %f, want default %f", m.Threshold(), FuzzyThreshold)
	}
	m = Fuzzy(1.5)
	if m.Threshold() != FuzzyThreshold {
		t.Errorf("Threshold = %f, want default %f", m.Threshold(), FuzzyThreshold)
	}
}
