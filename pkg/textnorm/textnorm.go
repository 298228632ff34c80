// Package textnorm normalizes recognized speech and OCR text so that phrases can be
// compared regardless of case, accents or punctuation.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD and drops nonspacing combining marks ("é" -> "e").
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// Normalize lowercases s, removes diacritics, replaces every rune that is not a
// letter or number with a space and collapses whitespace.
//
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	decomposed, _, err := transform.String(stripMarks, s)
	if err != nil {
		decomposed = s
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the whitespace-delimited tokens of the normalized text.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// TokenSet returns the set of tokens of the normalized text.
func TokenSet(s string) map[string]struct{} {
	tokens := Tokens(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ContainsAll reports whether every token of want is present in set.
// An empty want never matches.
func ContainsAll(set map[string]struct{}, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for _, t := range want {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// HasPrefixTokens reports whether the tokens of prefix are the leading tokens of s.
// Both arguments are normalized first.
func HasPrefixTokens(s, prefix string) bool {
	got := Tokens(s)
	want := Tokens(prefix)
	if len(want) == 0 || len(want) > len(got) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// TrimSlot trims a captured slot value and strips trailing punctuation.
func TrimSlot(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return s
}
