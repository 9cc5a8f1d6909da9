package grading

import (
	"strings"
	"unicode"
)

// Normalize trims, collapses inner whitespace and casefolds.
func Normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// Matches reports whether text equals any accepted variant after normalization.
func Matches(text string, accepted []string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	for _, a := range accepted {
		if strings.EqualFold(Normalize(a), n) {
			return true
		}
	}
	return false
}
