package classifier

import (
	"strings"

	"github.com/zkinzler/dfw-openings/pkg/normalizers"
)

// phrase is a keyword as a token sequence
type phrase []string

// keywordSet matches whole tokens or contiguous token runs, so "bar" never matches "barber"
type keywordSet struct {
	phrases []phrase
}

func newKeywordSet(keywords []string) keywordSet {
	ks := keywordSet{phrases: make([]phrase, 0, len(keywords))}
	for _, kw := range keywords {
		if tokens := normalizers.Tokenize(kw); len(tokens) > 0 {
			ks.phrases = append(ks.phrases, tokens)
		}
	}
	return ks
}

// Match returns the first keyword found in tokens
func (ks keywordSet) Match(tokens []string) (string, bool) {
	for _, p := range ks.phrases {
		if containsRun(tokens, p) {
			return strings.Join(p, " "), true
		}
	}
	return "", false
}

func containsRun(tokens []string, p phrase) bool {
	if len(p) == 0 || len(p) > len(tokens) {
		return false
	}
outer:
	for i := 0; i+len(p) <= len(tokens); i++ {
		for j := range p {
			if tokens[i+j] != p[j] {
				continue outer
			}
		}
		return true
	}
	return false
}
