package intent

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		lang Language
		want string
	}{
		{"Ponto do FLAMENGO!!", Portuguese, "ponto do flamengo"},
		{"  João   Silva ", Portuguese, "joao silva"},
		{"camisa três", Portuguese, "camisa 3"},
		{"Taimaute, time A", Portuguese, "timeout time a"},
		{"time-out", English, "timeout"},
		{"sack for team b", English, "serve for team b"},
		{"pont pont", Portuguese, "ponto ponto"},
		{"número diecisiete", Spanish, "numero 17"},
		{"", Portuguese, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.in, tt.lang); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Ponto do Flamengo", "taimaute", "taim aut time b", "bloco bloco",
		"pont", "mais um ponto", "trocar de lado", "Ação! Çedilha, ñandú",
		"Time-out for the HOME team", "sack sack", "tres três 3", "ase eice",
	}
	for _, lang := range []Language{Portuguese, English, Spanish} {
		for _, in := range inputs {
			once := Normalize(in, lang)
			if twice := Normalize(once, lang); twice != once {
				t.Errorf("Normalize not idempotent for %q (%s): %q then %q", in, lang, once, twice)
			}
		}
	}
}

// Every rewrite target must survive a second pass unchanged, or Normalize
// stops being idempotent.
func TestVocabulary_RewritesAreStable(t *testing.T) {
	t.Parallel()

	for lang, v := range vocabularies {
		for _, rw := range v.rewrites {
			for _, other := range v.rewrites {
				got := replaceTokens(rw.to, other)
				if !equalTokens(got, rw.to) {
					t.Errorf("%s: rewrite target %v is changed by %v", lang, rw.to, other.from)
				}
			}
		}
	}
}

func TestVocabulary_UnknownLanguageFallsBack(t *testing.T) {
	t.Parallel()

	if vocabularyFor("de") != vocabularies[Portuguese] {
		t.Error("unknown language did not fall back to Portuguese")
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	if containsPhrase("timeout", "time") {
		t.Error("containsPhrase matched inside a word")
	}
	if !containsPhrase("ponto time b agora", "time b") {
		t.Error("containsPhrase missed a whole phrase")
	}
	if containsPhrase("ponto", "") {
		t.Error("containsPhrase matched an empty phrase")
	}
}
