// Package trigram computes trigram similarity with the same semantics as the
// PostgreSQL pg_trgm extension, so in-memory ranking agrees with the database.
package trigram

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Set is the set of distinct trigrams extracted from a string.
type Set map[string]struct{}

// Extract returns the trigrams of s. Words are maximal runs of letters and
// digits; each word is padded with two leading spaces and one trailing space.
func Extract(s string) Set {
	set := make(Set)
	for _, word := range words(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// Similarity returns |A ∩ B| / |A ∪ B| over the trigram sets of a and b.
func Similarity(a, b string) float64 {
	return SetSimilarity(Extract(a), Extract(b))
}

// SetSimilarity is Similarity over precomputed sets.
func SetSimilarity(a, b Set) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for g := range small {
		if _, ok := large[g]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func words(s string) []string {
	folded := strings.ToLower(norm.NFKC.String(s))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
