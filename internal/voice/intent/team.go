package intent

import (
	"strings"

	"github.com/MrWong99/courtside/internal/voice/fuzzy"
)

// Team cascade confidences.
const (
	confTeamName    = 0.95
	confTeamStrict  = 0.90
	confTeamSide    = 0.85
	confTeamFuzzy   = 0.85
	confTeamGeneric = 0.90
)

// minNicknameLength is the shortest token accepted as a team nickname
// ("Fla" for "Flamengo").
const minNicknameLength = 3

// utterance is a normalized transcript with the lookups every matcher needs.
type utterance struct {
	text string
	// keywords is text with correction phrases masked, so "take away" is
	// never read as the away team.
	keywords string
	tokens   []string
	vocab    *vocabulary
	mc       MatchContext
	// names holds the normalized team names, indexed by team.
	names map[Team]string
}

func newUtterance(text string, v *vocabulary, mc MatchContext) *utterance {
	u := &utterance{
		text:     text,
		keywords: maskPhrases(text, v.corrections),
		tokens:   strings.Fields(text),
		vocab:    v,
		mc:       mc,
		names: map[Team]string{
			TeamA: normalize(mc.TeamAName, v.numbers, v.rewrites),
			TeamB: normalize(mc.TeamBName, v.numbers, v.rewrites),
		},
	}
	return u
}

// significant drops prepositions from a normalized phrase.
func (u *utterance) significant(phrase string) []string {
	var out []string
	for _, tok := range strings.Fields(phrase) {
		if !u.vocab.prepositions[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// contentTokens returns the tokens that are not command keywords.
func (u *utterance) contentTokens() []string {
	var out []string
	for _, tok := range u.tokens {
		if !u.vocab.stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// candidateTokens returns the tokens that may refer to a player: content
// tokens that are not part of a team name.
func (u *utterance) candidateTokens() []string {
	teamWords := make(map[string]bool)
	for _, name := range u.names {
		for _, tok := range strings.Fields(name) {
			teamWords[tok] = true
		}
	}
	var out []string
	for _, tok := range u.tokens {
		if u.vocab.stopwords[tok] || teamWords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// teamMatch is the result of one team cascade tier.
type teamMatch struct {
	team       Team
	confidence float64
	tier       string
}

// teamMatcher is one tier of the team cascade. ok is false when the tier
// has no opinion.
type teamMatcher func(u *utterance, fm *fuzzy.Matcher) (teamMatch, bool)

// teamCascade lists the tiers in priority order. The first tier that
// matches wins.
var teamCascade = []teamMatcher{
	matchTeamName,
	matchTeamStrict,
	matchTeamSide,
	matchTeamFuzzy,
	matchTeamGeneric,
}

func resolveTeam(u *utterance, fm *fuzzy.Matcher) (teamMatch, bool) {
	for _, m := range teamCascade {
		if tm, ok := m(u, fm); ok {
			return tm, true
		}
	}
	return teamMatch{}, false
}

// matchTeamName finds a team name spelled out in the utterance. Names are
// also compared without prepositions, so "Escola Vôlei Santos" still finds
// "Escola de Vôlei Santos".
func matchTeamName(u *utterance, _ *fuzzy.Matcher) (teamMatch, bool) {
	stripped := strings.Join(u.significant(u.text), " ")
	for _, t := range []Team{TeamA, TeamB} {
		name := u.names[t]
		if len(name) <= 2 {
			continue
		}
		if containsPhrase(u.text, name) ||
			containsPhrase(stripped, strings.Join(u.significant(name), " ")) {
			return teamMatch{team: t, confidence: confTeamName, tier: "name"}, true
		}
	}
	return teamMatch{}, false
}

func matchTeamStrict(u *utterance, _ *fuzzy.Matcher) (teamMatch, bool) {
	return keywordTeam(u.keywords, u.vocab.teamA, u.vocab.teamB, confTeamStrict, "strict")
}

func matchTeamSide(u *utterance, _ *fuzzy.Matcher) (teamMatch, bool) {
	return keywordTeam(u.keywords, u.vocab.sideA, u.vocab.sideB, confTeamSide, "side")
}

func matchTeamGeneric(u *utterance, _ *fuzzy.Matcher) (teamMatch, bool) {
	return keywordTeam(u.keywords, u.vocab.genericA, u.vocab.genericB, confTeamGeneric, "generic")
}

// keywordTeam resolves a team from two keyword lists. An utterance naming
// both sides resolves nothing.
func keywordTeam(text string, a, b []string, conf float64, tier string) (teamMatch, bool) {
	hitA, hitB := containsAny(text, a), containsAny(text, b)
	switch {
	case hitA && !hitB:
		return teamMatch{team: TeamA, confidence: conf, tier: tier}, true
	case hitB && !hitA:
		return teamMatch{team: TeamB, confidence: conf, tier: tier}, true
	}
	return teamMatch{}, false
}

// matchTeamFuzzy tolerates misheard team names. It accepts either a token
// window within edit distance of the name or a nickname that prefixes one
// of the name's words. A token that fits both teams is ignored.
func matchTeamFuzzy(u *utterance, fm *fuzzy.Matcher) (teamMatch, bool) {
	tokens := u.contentTokens()
	if len(tokens) == 0 {
		return teamMatch{}, false
	}
	hit := func(t Team) bool {
		name := u.names[t]
		if len(name) <= 2 {
			return false
		}
		words := u.significant(name)
		if fm.WindowMatch(tokens, strings.Join(words, " ")) {
			return true
		}
		for _, tok := range tokens {
			if len(tok) < minNicknameLength {
				continue
			}
			for _, w := range words {
				if u.vocab.stopwords[w] {
					continue
				}
				if strings.HasPrefix(w, tok) {
					return true
				}
			}
		}
		return false
	}
	hitA, hitB := hit(TeamA), hit(TeamB)
	switch {
	case hitA && !hitB:
		return teamMatch{team: TeamA, confidence: confTeamFuzzy, tier: "fuzzy"}, true
	case hitB && !hitA:
		return teamMatch{team: TeamB, confidence: confTeamFuzzy, tier: "fuzzy"}, true
	}
	return teamMatch{}, false
}

// teamCue scans a follow-up utterance for a team reference. Only explicit
// cues count: names, strict keywords, sides and nicknames.
func teamCue(u *utterance, fm *fuzzy.Matcher) (Team, bool) {
	for _, m := range []teamMatcher{matchTeamName, matchTeamStrict, matchTeamSide, matchTeamFuzzy} {
		if tm, ok := m(u, fm); ok {
			return tm.team, true
		}
	}
	return TeamNone, false
}
