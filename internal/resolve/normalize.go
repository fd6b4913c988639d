package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// honorifics are stripped from the end of member names as printed in minutes.
var honorifics = []string{"君", "様", "さん", "氏"}

// Normalize folds width variants and drops whitespace and parenthesized notes.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = stripParentheticals(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// NormalizeMember is Normalize followed by honorific removal.
func NormalizeMember(s string) string {
	s = Normalize(s)
	for _, h := range honorifics {
		if trimmed := strings.TrimSuffix(s, h); trimmed != s && trimmed != "" {
			return trimmed
		}
	}
	return s
}

// stripParentheticals removes bracketed notes such as party names.
// Input is NFKC folded, so full-width parentheses are already ASCII.
func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '〔', '【':
			depth++
			continue
		case ')', '〕', '】':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
