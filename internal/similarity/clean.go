package similarity

import (
	"regexp"
	"strings"
)

// genericTokens are verbs that appear in most task descriptions and carry no
// signal about which work type is meant.
var genericTokens = regexp.MustCompile(`(?i)\b(install|installation|replace|replacement|repair|repairs|service|services)\b`)

// minCleanLength is the shortest cleaned text used; anything shorter falls back to the original.
const minCleanLength = 3

// CleanText lower-cases text, strips generic tokens and collapses whitespace.
// Catalog names and fragments go through the same cleaning before comparison.
func CleanText(text string) string {
	original := collapse(strings.ToLower(text))
	cleaned := collapse(genericTokens.ReplaceAllString(original, " "))
	if len(cleaned) < minCleanLength {
		return original
	}
	return cleaned
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
