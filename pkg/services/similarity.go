package services

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]`)
	punctuation   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Default similarity thresholds.
const (
	DefaultCharRatioThreshold   = 0.8
	DefaultWordOverlapThreshold = 0.5
)

// DescriptionMatcher decides whether two descriptions name the same thing.
type DescriptionMatcher struct {
	CharRatio   float64
	WordOverlap float64
}

// NewDescriptionMatcher returns a matcher; zero thresholds fall back to the defaults.
func NewDescriptionMatcher(charRatio, wordOverlap float64) DescriptionMatcher {
	if charRatio <= 0 {
		charRatio = DefaultCharRatioThreshold
	}
	if wordOverlap <= 0 {
		wordOverlap = DefaultWordOverlapThreshold
	}
	return DescriptionMatcher{CharRatio: charRatio, WordOverlap: wordOverlap}
}

// NormalizeDescription strips parenthetical content, turns punctuation into
// spaces, collapses whitespace and lowercases.
func NormalizeDescription(s string) string {
	s = parenthetical.ReplaceAllString(s, " ")
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// IsTrivialDescription reports whether nothing is left after normalisation.
func IsTrivialDescription(s string) bool {
	return NormalizeDescription(s) == ""
}

// CharRatio is the sequence-matcher similarity ratio 2*M/T over characters.
func CharRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(splitChars(a), splitChars(b))
	return m.Ratio()
}

// WordOverlap is the Jaccard index of the whitespace-separated word sets.
func WordOverlap(a, b string) float64 {
	wa := tokenSet(strings.Fields(a))
	wb := tokenSet(strings.Fields(b))
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// Similar applies the two-stage test to raw descriptions.
func (m DescriptionMatcher) Similar(a, b string) bool {
	return m.SimilarNormalized(NormalizeDescription(a), NormalizeDescription(b))
}

// SimilarNormalized applies the test to descriptions already passed through NormalizeDescription.
func (m DescriptionMatcher) SimilarNormalized(a, b string) bool {
	if a == b {
		return true
	}
	if CharRatio(a, b) >= m.CharRatio {
		return true
	}
	return WordOverlap(a, b) >= m.WordOverlap
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
