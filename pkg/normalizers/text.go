package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips diacritics and case-folds. Transformers are stateful so each call builds its own.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return cases.Fold().String(folded)
}

// isDeleted reports runes that join their neighbours instead of separating them
func isDeleted(r rune) bool {
	switch r {
	case '\'', '’', '‘', '`', '´', '-', '‐', '‑', '–', '—', '#', '.':
		return true
	}
	return false
}

// stripPunctuation deletes joining punctuation, turns every other non-alphanumeric rune
// into a separator, and collapses whitespace
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case isDeleted(r):
		default:
			b.WriteRune(' ')
		}
	}
	return CollapseWhitespace(b.String())
}

// finish picks the first non-empty candidate so a non-blank input never yields an empty key
func finish(tokens []string, stripped, folded string) string {
	if len(tokens) > 0 {
		return strings.Join(tokens, " ")
	}
	if stripped != "" {
		return stripped
	}
	return CollapseWhitespace(folded)
}

// NormalizeCity builds the city grouping key
func NormalizeCity(s string) string {
	return CollapseWhitespace(Fold(s))
}

// DisplayCity renders a city name in title case, e.g. "FORT  WORTH" -> "Fort Worth"
func DisplayCity(s string) string {
	s = CollapseWhitespace(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.AmericanEnglish).String(strings.ToLower(s))
}

// Tokenize splits text into the folded word tokens used for keyword matching.
// "Joe's Bar-B-Q" -> ["joes", "barbq"].
func Tokenize(s string) []string {
	return strings.Fields(stripPunctuation(Fold(s)))
}
