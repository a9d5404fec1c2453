package ranker

import (
	"strings"

	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
)

// queryTerms holds the retrieval terms of one query.
type queryTerms struct {
	phrase string
	terms  []string
}

func newQueryTerms(q models.Query) queryTerms {
	normalized := q.NormalizedText
	if normalized == "" {
		normalized = textnorm.Normalize(q.RawText)
	}
	tokens := textnorm.Tokens(normalized)

	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if textnorm.IsStopword(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	if len(terms) == 0 {
		for _, tok := range tokens {
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				terms = append(terms, tok)
			}
		}
	}
	return queryTerms{phrase: normalized, terms: terms}
}

func (qt queryTerms) matches(t textnorm.Text) int {
	n := 0
	for _, term := range qt.terms {
		if t.Contains(term) {
			n++
		}
	}
	return n
}

// phraseFraction is 1 when the whole query appears verbatim in the title,
// otherwise the share of query terms covered by the longest run of
// consecutive terms (two or more) found in the title. Matches found only in
// the summary count half.
func (qt queryTerms) phraseFraction(title, summary textnorm.Text) float64 {
	best := qt.longestRun(title)
	if s := qt.longestRun(summary) / 2; s > best {
		best = s
	}
	return best
}

// fullPhrase reports whether t carries every query term as one run.
// Single-term queries have no phrase.
func (qt queryTerms) fullPhrase(t textnorm.Text) bool {
	return qt.longestRun(t) == 1
}

func (qt queryTerms) longestRun(t textnorm.Text) float64 {
	if t.Empty() || len(qt.terms) == 0 {
		return 0
	}
	if strings.Contains(qt.phrase, " ") && t.Contains(qt.phrase) {
		return 1
	}
	for n := len(qt.terms); n >= 2; n-- {
		for i := 0; i+n <= len(qt.terms); i++ {
			if t.Contains(strings.Join(qt.terms[i:i+n], " ")) {
				return float64(n) / float64(len(qt.terms))
			}
		}
	}
	return 0
}
