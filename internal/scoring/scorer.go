// Package scoring maps transcript text to an emotional severity score using
// weighted keyword lexicons.
package scoring

import (
	"strings"
	"sync/atomic"
)

// Scorer computes emotional scores. It is safe for concurrent use; the
// lexicon may be swapped while scoring is in progress.
type Scorer struct {
	lexicon atomic.Pointer[Lexicon]
}

// NewScorer normalizes lex and returns a scorer over it.
func NewScorer(lex Lexicon) *Scorer {
	s := &Scorer{}
	s.Swap(lex)
	return s
}

// NewDefaultScorer returns a scorer over the built-in lexicon.
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultLexicon())
}

// Swap replaces the active lexicon.
func (s *Scorer) Swap(lex Lexicon) {
	normalized := Normalize(lex)
	s.lexicon.Store(&normalized)
}

// Lexicon returns the active lexicon.
func (s *Scorer) Lexicon() Lexicon {
	return *s.lexicon.Load()
}

// Score adds a category's weight once for every distinct keyword of that
// category contained in text. Matching is case-insensitive substring
// containment, so "stress" also matches "stressed".
func (s *Scorer) Score(text string) float64 {
	if text == "" {
		return 0
	}
	msg := strings.ToLower(text)
	lex := s.lexicon.Load()

	total := 0.0
	for _, cat := range lex.Categories {
		for _, word := range cat.Words {
			if strings.Contains(msg, word) {
				total += cat.Weight
			}
		}
	}
	return total
}

// Matches lists the keywords that contributed to the score, by category.
func (s *Scorer) Matches(text string) map[string][]string {
	found := map[string][]string{}
	if text == "" {
		return found
	}
	msg := strings.ToLower(text)
	for _, cat := range s.lexicon.Load().Categories {
		for _, word := range cat.Words {
			if strings.Contains(msg, word) {
				found[cat.Name] = append(found[cat.Name], word)
			}
		}
	}
	return found
}
