package fuzzy_test

import (
	"testing"

	"github.com/MrWong99/courtside/internal/voice/fuzzy"
)

func TestMatcher_Similar(t *testing.T) {
	t.Parallel()

	m := fuzzy.New()

	tests := []struct {
		a, b string
		want bool
	}{
		{"flamengo", "flamengo", true},
		{"flamengoo", "flamengo", true},
		{"beatris", "beatriz", true},
		{"botafogo", "flamengo", false},
		{"ana", "ama", false},
		{"", "", false},
		{"ponto", "carlos", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"~"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := m.Similar(tt.a, tt.b); got != tt.want {
				t.Errorf("Similar(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatcher_WindowMatch(t *testing.T) {
	t.Parallel()

	m := fuzzy.New()

	if !m.WindowMatch([]string{"ponto", "flamengoo"}, "flamengo") {
		t.Error("WindowMatch: single-token misspelling not matched")
	}
	if !m.WindowMatch([]string{"ponto", "sao", "paolo"}, "sao paulo") {
		t.Error("WindowMatch: two-word phrase not matched")
	}
	if m.WindowMatch([]string{"ponto"}, "sao paulo") {
		t.Error("WindowMatch: window longer than input matched")
	}
	if m.WindowMatch([]string{"ponto", "bloqueio"}, "flamengo") {
		t.Error("WindowMatch: unrelated tokens matched")
	}
}

func TestMatcher_MinLength(t *testing.T) {
	t.Parallel()

	m := fuzzy.New(fuzzy.WithMinLength(6))
	if m.Similar("silvo", "silva") {
		t.Error("Similar: words below minimum length matched")
	}
	if !m.Similar("silva", "silva") {
		t.Error("Similar: identical short words did not match")
	}
}
