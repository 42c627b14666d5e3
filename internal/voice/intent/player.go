package intent

import (
	"strconv"
	"strings"

	"github.com/MrWong99/courtside/internal/voice/fuzzy"
)

// Player cascade scores.
const (
	scoreExactName   = 100
	scoreJersey      = 90
	scoreNamePrefix  = 70
	scoreContainment = 50
	scoreSharedToken = 45
	scoreFuzzy       = 30
)

// minTokenLength is the shortest utterance token that may count as partial
// evidence for a player name.
const minTokenLength = 3

// rosterEntry is a player together with the team whose roster lists them.
type rosterEntry struct {
	player Player
	team   Team
	// name is the normalized full name, words its tokens.
	name  string
	words []string
}

// playerScorer is one rule of the player cascade. It returns the rule's
// score when it applies to e.
type playerScorer func(u *utterance, e rosterEntry, cand []string, fm *fuzzy.Matcher) (int, bool)

// playerCascade lists the scoring rules from strongest to weakest. A
// player's score is that of the first rule that applies.
var playerCascade = []playerScorer{
	scoreByExactName,
	scoreByJersey,
	scoreByNamePrefix,
	scoreByContainment,
	scoreBySharedToken,
	scoreByFuzzy,
}

// playerMatch is the outcome of the player cascade.
type playerMatch struct {
	entry      rosterEntry
	score      int
	candidates []rosterEntry
}

func (pm playerMatch) ambiguous() bool { return len(pm.candidates) > 1 }

func roster(u *utterance) []rosterEntry {
	var out []rosterEntry
	add := func(players []Player, t Team) {
		for _, p := range players {
			name := normalize(p.Name, u.vocab.numbers, u.vocab.rewrites)
			if name == "" && p.Number == 0 {
				continue
			}
			out = append(out, rosterEntry{player: p, team: t, name: name, words: strings.Fields(name)})
		}
	}
	add(u.mc.PlayersA, TeamA)
	add(u.mc.PlayersB, TeamB)
	return out
}

// resolvePlayer scores every rostered player and keeps the best. When the
// top score is shared, all players holding it become candidates.
func resolvePlayer(u *utterance, fm *fuzzy.Matcher) (playerMatch, bool) {
	cand := u.candidateTokens()
	best := 0
	var top []rosterEntry
	for _, e := range roster(u) {
		score := 0
		for _, rule := range playerCascade {
			if s, ok := rule(u, e, cand, fm); ok {
				score = s
				break
			}
		}
		switch {
		case score == 0:
		case score > best:
			best = score
			top = []rosterEntry{e}
		case score == best:
			top = append(top, e)
		}
	}
	if len(top) == 0 {
		return playerMatch{}, false
	}
	pm := playerMatch{entry: top[0], score: best}
	if len(top) > 1 {
		pm.candidates = top
	}
	return pm, true
}

func scoreByExactName(u *utterance, e rosterEntry, _ []string, _ *fuzzy.Matcher) (int, bool) {
	return scoreExactName, len(e.name) >= minTokenLength && containsPhrase(u.text, e.name)
}

func scoreByJersey(u *utterance, e rosterEntry, _ []string, _ *fuzzy.Matcher) (int, bool) {
	if e.player.Number <= 0 {
		return 0, false
	}
	num := strconv.Itoa(e.player.Number)
	for i := 0; i+1 < len(u.tokens); i++ {
		if u.vocab.jersey[u.tokens[i]] && u.tokens[i+1] == num {
			return scoreJersey, true
		}
	}
	return 0, false
}

// scoreByNamePrefix matches the leading words of a multi-word name, such as
// a first name on its own.
func scoreByNamePrefix(u *utterance, e rosterEntry, _ []string, _ *fuzzy.Matcher) (int, bool) {
	if len(e.words) < 2 || len(e.words[0]) < minTokenLength || u.vocab.stopwords[e.words[0]] {
		return 0, false
	}
	for k := len(e.words) - 1; k >= 1; k-- {
		if containsPhrase(u.text, strings.Join(e.words[:k], " ")) {
			return scoreNamePrefix, true
		}
	}
	return 0, false
}

// scoreByContainment matches partial words ("silv" in "joao silva") and
// run-together names ("anapaula").
func scoreByContainment(_ *utterance, e rosterEntry, cand []string, _ *fuzzy.Matcher) (int, bool) {
	joined := strings.Join(e.words, "")
	for _, tok := range cand {
		if len(tok) < minTokenLength || isWord(e.words, tok) {
			continue
		}
		if strings.Contains(e.name, tok) || (len(joined) >= minTokenLength && strings.Contains(tok, joined)) {
			return scoreContainment, true
		}
	}
	return 0, false
}

// scoreBySharedToken matches a whole word of the name other than the first,
// usually a surname.
func scoreBySharedToken(_ *utterance, e rosterEntry, cand []string, _ *fuzzy.Matcher) (int, bool) {
	for _, tok := range cand {
		if len(tok) < minTokenLength {
			continue
		}
		for i, w := range e.words {
			if i == 0 && len(e.words) > 1 {
				continue
			}
			if w == tok {
				return scoreSharedToken, true
			}
		}
	}
	return 0, false
}

func scoreByFuzzy(_ *utterance, e rosterEntry, cand []string, fm *fuzzy.Matcher) (int, bool) {
	for _, tok := range cand {
		for _, w := range e.words {
			if w != tok && fm.Similar(tok, w) {
				return scoreFuzzy, true
			}
		}
	}
	return 0, false
}

func isWord(words []string, tok string) bool {
	for _, w := range words {
		if w == tok {
			return true
		}
	}
	return false
}

func (e rosterEntry) ref() *PlayerRef {
	return &PlayerRef{ID: e.player.ID, Name: e.player.Name}
}
