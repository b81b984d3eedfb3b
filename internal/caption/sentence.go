package caption

import (
	"strings"
	"unicode/utf8"
)

// SentencePolicy decides how an incoming text fragment updates the current
// sentence buffer for a language. Apply returns the new buffer value; it must
// be a pure function of its inputs.
//
// The policy is deliberately pluggable: the default punctuation-or-growth
// heuristic is a simple approximation of sentence segmentation and can be
// swapped without touching the segment store or transport.
type SentencePolicy interface {
	Apply(current, incoming string) string
}

// Terminal punctuation marks treated as sentence-closing.
var defaultTerminals = []rune{'.', '?', '!', '؟'}

// PunctuationPolicy is the default [SentencePolicy]:
//
//   - a fragment ending in a terminal mark closes the sentence wholesale,
//   - a strictly longer fragment extends an open sentence,
//   - a shorter or stale fragment never regresses an open sentence,
//   - the first non-empty fragment after a closed sentence starts fresh.
type PunctuationPolicy struct {
	terminals []rune
}

// NewPunctuationPolicy creates a [PunctuationPolicy] with the given terminal
// marks. When none are given the defaults (".", "?", "!" and the Arabic
// question mark "؟") are used.
func NewPunctuationPolicy(terminals ...rune) *PunctuationPolicy {
	if len(terminals) == 0 {
		terminals = defaultTerminals
	}
	return &PunctuationPolicy{terminals: terminals}
}

// Apply implements [SentencePolicy].
func (p *PunctuationPolicy) Apply(current, incoming string) string {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return current
	}
	if current == "" {
		return incoming
	}

	// A terminally-punctuated fragment is sentence-complete and replaces the
	// buffer wholesale.
	if p.Closes(incoming) {
		return incoming
	}

	// The buffer holds a closed sentence; the next fragment starts a fresh
	// one rather than extending it.
	if p.Closes(current) {
		return incoming
	}

	// Monotonic growth of a streaming partial.
	if utf8.RuneCountInString(incoming) > utf8.RuneCountInString(current) {
		return incoming
	}

	// Shorter or older fragments must not regress a fuller line already shown.
	return current
}

// Closes reports whether s ends in a terminal punctuation mark, i.e. whether
// it reads as a complete sentence.
func (p *PunctuationPolicy) Closes(s string) bool {
	last, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return false
	}
	for _, t := range p.terminals {
		if last == t {
			return true
		}
	}
	return false
}
