package normalizers

import (
	"regexp"
	"strings"
)

// unit designators are dropped together with the token that follows them
var unitDesignators = map[string]bool{
	"suite":     true,
	"ste":       true,
	"unit":      true,
	"apt":       true,
	"apartment": true,
	"bldg":      true,
	"building":  true,
	"rm":        true,
	"room":      true,
	"fl":        true,
	"floor":     true,
	"spc":       true,
	"space":     true,
	"lot":       true,
}

// canonical abbreviations for street types and directionals
var addressAbbreviations = map[string]string{
	"street":     "st",
	"str":        "st",
	"avenue":     "ave",
	"av":         "ave",
	"boulevard":  "blvd",
	"blvrd":      "blvd",
	"drive":      "dr",
	"drv":        "dr",
	"road":       "rd",
	"lane":       "ln",
	"court":      "ct",
	"circle":     "cir",
	"place":      "pl",
	"parkway":    "pkwy",
	"pky":        "pkwy",
	"highway":    "hwy",
	"freeway":    "fwy",
	"expressway": "expy",
	"trail":      "trl",
	"terrace":    "ter",
	"square":     "sq",
	"plaza":      "plz",
	"crossing":   "xing",
	"north":      "n",
	"south":      "s",
	"east":       "e",
	"west":       "w",
	"northeast":  "ne",
	"northwest":  "nw",
	"southeast":  "se",
	"southwest":  "sw",
}

// "#210", "# 210" and "#b" unit references
var hashUnitRe = regexp.MustCompile(`#\s*[\p{L}\p{N}-]+`)

// NormalizeAddress builds the street address matching key.
//
//	"100 Main Street, Suite 200" -> "100 main st"
//	"100 MAIN ST #200"           -> "100 main st"
func NormalizeAddress(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	folded := Fold(raw)
	stripped := stripPunctuation(folded)

	tokens := abbreviate(dropUnits(strings.Fields(stripPunctuation(hashUnitRe.ReplaceAllString(folded, " ")))))
	if len(tokens) == 0 {
		// nothing but "#unit" references; keep them rather than return an empty key
		tokens = abbreviate(dropUnits(strings.Fields(stripped)))
	}

	return finish(tokens, stripped, folded)
}

func abbreviate(tokens []string) []string {
	for i, tok := range tokens {
		if abbr, ok := addressAbbreviations[tok]; ok {
			tokens[i] = abbr
		}
	}
	return tokens
}

func dropUnits(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		// a designator in first position is more likely part of a name, e.g. "Unit Road"
		if i > 0 && unitDesignators[tokens[i]] {
			i++
			continue
		}
		kept = append(kept, tokens[i])
	}
	return kept
}
