// Package textnorm normalizes free text for keyword matching across scripts.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// Normalize lower-cases s, strips combining marks (Latin accents, Arabic
// harakat and hamza carriers), replaces punctuation with spaces and collapses
// whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	space := true
	for _, r := range stripped {
		switch {
		case r == tatweel:
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits already-normalized text on spaces.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// IsLatin reports whether every letter in s belongs to the Latin script.
func IsLatin(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

// Text is a normalized string prepared for repeated term lookups.
type Text struct {
	Normalized string
	Tokens     []string
	padded     string
	set        map[string]struct{}
}

// Analyze normalizes raw and indexes its tokens.
func Analyze(raw string) Text {
	normalized := Normalize(raw)
	tokens := Tokens(normalized)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return Text{
		Normalized: normalized,
		Tokens:     tokens,
		padded:     " " + normalized + " ",
		set:        set,
	}
}

// Contains reports whether term occurs in the text. Latin terms match whole
// tokens (or whole token sequences for phrases); other scripts match by
// substring so attached prefixes and suffixes do not hide a hit.
func (t Text) Contains(term string) bool {
	term = Normalize(term)
	if term == "" || t.Normalized == "" {
		return false
	}
	if !IsLatin(term) {
		return strings.Contains(t.Normalized, term)
	}
	if !strings.Contains(term, " ") {
		_, ok := t.set[term]
		return ok
	}
	return strings.Contains(t.padded, " "+term+" ")
}

// Empty reports whether the text has no tokens.
func (t Text) Empty() bool {
	return len(t.Tokens) == 0
}

// Jaccard returns the Jaccard similarity of the token sets of a and b.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for _, tok := range a {
		setA[tok] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, tok := range b {
		setB[tok] = struct{}{}
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "of": {}, "in": {},
	"on": {}, "at": {}, "for": {}, "to": {}, "and": {}, "or": {}, "what": {}, "whats": {},
	"s": {}, "how": {}, "much": {}, "many": {}, "me": {}, "tell": {}, "please": {},
	"show": {}, "give": {}, "about": {}, "with": {}, "does": {}, "do": {}, "i": {},
	"my": {}, "when": {}, "where": {}, "which": {}, "who": {}, "there": {}, "any": {},
	"في": {}, "من": {}, "ما": {}, "هو": {}, "هي": {}, "على": {}, "عن": {}, "كم": {},
}

// IsStopword reports whether tok carries no retrieval signal.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}
