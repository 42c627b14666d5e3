package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts raw transcript text into the canonical form every
// keyword table is matched against: lowercase, no diacritics, no
// punctuation, single spaces, number words replaced by digits and known
// speech-engine mis-hearings rewritten.
//
// Normalize is idempotent. Unknown languages use the Portuguese tables.
func Normalize(text string, lang Language) string {
	v := vocabularyFor(lang)
	return normalize(text, v.numbers, v.rewrites)
}

// rewrite replaces the whole-word phrase from with to.
type rewrite struct {
	from []string
	to   []string
}

func normalize(text string, numbers map[string]string, rewrites []rewrite) string {
	tokens := strings.Fields(fold(text))
	for i, tok := range tokens {
		if d, ok := numbers[tok]; ok {
			tokens[i] = d
		}
	}
	for _, rw := range rewrites {
		tokens = replaceTokens(tokens, rw)
	}
	return strings.Join(tokens, " ")
}

// fold lowercases s, strips combining marks and turns punctuation into
// spaces. Hyphens and apostrophes join their neighbours ("time-out").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(s)
	out, _, err := transform.String(t, lower)
	if err != nil {
		out = lower
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '-', r == '\'', r == '’':
			return -1
		default:
			return ' '
		}
	}, out)
}

func replaceTokens(tokens []string, rw rewrite) []string {
	n := len(rw.from)
	if n == 0 || len(tokens) < n {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if i+n <= len(tokens) && equalTokens(tokens[i:i+n], rw.from) {
			out = append(out, rw.to...)
			i += n
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// containsPhrase reports whether the normalized text contains phrase as a
// run of whole words.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

// maskPhrases replaces every whole-phrase occurrence of phrases in text
// with a placeholder token.
func maskPhrases(text string, phrases []string) string {
	padded := " " + text + " "
	for _, p := range phrases {
		if p == "" {
			continue
		}
		needle := " " + p + " "
		for strings.Contains(padded, needle) {
			padded = strings.Replace(padded, needle, " _ ", 1)
		}
	}
	return strings.TrimSpace(padded)
}

// containsAny reports whether text contains any of phrases.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}
