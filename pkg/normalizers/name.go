package normalizers

import (
	"regexp"
	"strings"
)

// corporate designators carry no identity and are dropped wherever they appear
var corporateTokens = map[string]bool{
	"llc":          true,
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"ltd":          true,
	"limited":      true,
	"lp":           true,
	"llp":          true,
	"pllc":         true,
	"pc":           true,
}

// store numbers such as "12", "0041" or "41714h"
var storeNumberRe = regexp.MustCompile(`^[0-9]+[a-z]?$`)

// NormalizeName builds the name matching key of a business.
//
//	"Joe's Bar-B-Q #12, LLC" -> "joes barbq"
//	"JOES BARBQ 12"          -> "joes barbq"
//	"ACME Holdings LLC dba Joe's Tavern" -> "joes tavern"
func NormalizeName(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	folded := Fold(raw)
	folded = strings.ReplaceAll(folded, "d/b/a", " dba ")
	stripped := stripPunctuation(folded)

	tokens := tradeName(strings.Fields(stripped))
	tokens = dropCorporate(tokens)
	tokens = trimStoreNumbers(tokens)

	return finish(tokens, stripped, folded)
}

// tradeName keeps the name after the last "dba" when one is present
func tradeName(tokens []string) []string {
	for len(tokens) > 1 && tokens[len(tokens)-1] == "dba" {
		tokens = tokens[:len(tokens)-1]
	}
	for i := len(tokens) - 2; i >= 0; i-- {
		if tokens[i] == "dba" {
			return tokens[i+1:]
		}
	}
	return tokens
}

func dropCorporate(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !corporateTokens[tok] {
			kept = append(kept, tok)
		}
	}
	return kept
}

// trimStoreNumbers removes trailing store-number tokens but never the last token
func trimStoreNumbers(tokens []string) []string {
	for len(tokens) > 1 && storeNumberRe.MatchString(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}
