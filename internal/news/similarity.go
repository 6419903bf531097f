package news

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// jaccardFloor is the score at or below which containment is tried.
	jaccardFloor = 0.3
	// containmentScore is returned when one headline extends the other.
	containmentScore = 0.9
	// minTokenRunes drops short function words ("of", "in", "ও").
	minTokenRunes = 3
)

// Normalize lowercases s and strips every rune that is not a letter, combining
// mark, digit, underscore or whitespace. Marks are kept so that dependent vowel
// signs of Indic scripts stay attached to their consonants.
func Normalize(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Tokens returns the set of normalized tokens longer than two runes.
func Tokens(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) < minTokenRunes {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// Similarity scores two headlines in [0,1]. Jaccard over token sets is returned
// when it exceeds 0.3; otherwise a headline that contains the other scores 0.9,
// catching truncated or extended rewrites that Jaccard under-scores.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	s1, s2 := Tokens(na), Tokens(nb)
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}

	inter := 0
	for t := range s1 {
		if _, ok := s2[t]; ok {
			inter++
		}
	}
	union := len(s1) + len(s2) - inter
	j := float64(inter) / float64(union)
	if j > jaccardFloor {
		return j
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return containmentScore
	}
	return j
}
