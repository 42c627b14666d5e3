// Package fuzzy decides whether two spoken words are the same word modulo
// speech-engine transcription errors.
//
// Two tests are applied, cheapest first:
//
//  1. Edit distance: the Levenshtein distance must not exceed a budget that
//     grows with word length (one edit per five characters, at least one).
//  2. Sound-alike: the words share a Double Metaphone code and their
//     Jaro-Winkler similarity reaches the phonetic threshold.
//
// Words shorter than the minimum length never match fuzzily; short words
// collide too easily ("ana" and "ama").
package fuzzy

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultMinLength         = 4
	defaultEditRatio         = 0.2
	defaultPhoneticThreshold = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithMinLength sets the minimum word length eligible for fuzzy matching.
// Default: 4.
func WithMinLength(n int) Option {
	return func(m *Matcher) {
		m.minLength = n
	}
}

// WithEditRatio sets the allowed edits per character. Default: 0.2.
func WithEditRatio(r float64) Option {
	return func(m *Matcher) {
		m.editRatio = r
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for two words
// that share a Double Metaphone code. Default: 0.90.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	minLength         int
	editRatio         float64
	phoneticThreshold float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		minLength:         defaultMinLength,
		editRatio:         defaultEditRatio,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Similar reports whether a and b are close enough to be the same word.
// Identical inputs are always similar, regardless of length.
func (m *Matcher) Similar(a, b string) bool {
	if a == b {
		return a != ""
	}
	if len(a) < m.minLength || len(b) < m.minLength {
		return false
	}
	if matchr.Levenshtein(a, b) <= m.editBudget(a, b) {
		return true
	}
	if !codesOverlap(codes(a), codes(b)) {
		return false
	}
	return matchr.JaroWinkler(a, b, false) >= m.phoneticThreshold
}

// WindowMatch slides a window the size of phrase across tokens and reports
// whether any window is [Matcher.Similar] to phrase. Multi-word windows are
// compared with spaces removed.
func (m *Matcher) WindowMatch(tokens []string, phrase string) bool {
	target := strings.Fields(phrase)
	if len(target) == 0 || len(tokens) < len(target) {
		return false
	}
	want := strings.Join(target, "")
	for i := 0; i+len(target) <= len(tokens); i++ {
		got := strings.Join(tokens[i:i+len(target)], "")
		if m.Similar(got, want) {
			return true
		}
	}
	return false
}

func (m *Matcher) editBudget(a, b string) int {
	n := max(len(a), len(b))
	budget := int(float64(n) * m.editRatio)
	return max(budget, 1)
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) []string {
	p, s := matchr.DoubleMetaphone(word)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func codesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
