// Package verification holds the pure signal scorers and the fusion engine
// that turns their outputs into a verdict.
package verification

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it on anything that is not a letter or digit
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

type wordSet map[string]struct{}

func newWordSet(words ...[]string) wordSet {
	set := make(wordSet)
	for _, list := range words {
		for _, w := range list {
			set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
	}
	return set
}

func (s wordSet) has(w string) bool {
	_, ok := s[w]
	return ok
}

// count returns how many tokens are in the set, counting repeats
func (s wordSet) count(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if s.has(t) {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func capped(hits int, step, limit float64) float64 {
	v := float64(hits) * step
	if v > limit {
		return limit
	}
	return v
}
