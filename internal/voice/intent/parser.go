package intent

import (
	"fmt"
	"strings"

	"github.com/MrWong99/courtside/internal/voice/fuzzy"
)

// Fixed confidences outside the cascades.
const (
	confCertain = 1.0
	confSideOut = 0.80
)

// Option is a functional option for configuring a [Parser].
type Option func(*Parser)

// WithFuzzyMatcher replaces the matcher used by the fuzzy team tier and the
// fuzzy player score.
func WithFuzzyMatcher(m *fuzzy.Matcher) Option {
	return func(p *Parser) {
		p.fuzzy = m
	}
}

// Parser interprets transcripts. It holds no per-call state and is safe for
// concurrent use.
type Parser struct {
	fuzzy *fuzzy.Matcher
}

// NewParser returns a [Parser] configured with opts.
func NewParser(opts ...Option) *Parser {
	p := &Parser{fuzzy: fuzzy.New()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse interprets text spoken in lang against the match state mc.
// It never fails: anything it cannot interpret comes back as [TypeUnknown]
// with zero confidence.
func (p *Parser) Parse(text string, lang Language, mc MatchContext) Intent {
	in := Intent{Type: TypeUnknown, RawText: text}
	if mc.MatchOver {
		in.Debug = "match over"
		return in
	}

	v := vocabularyFor(lang)
	norm := normalize(text, v.numbers, v.rewrites)
	var tr trace
	tr.add("norm", norm)
	if norm == "" {
		in.Debug = tr.String()
		return in
	}

	sig := signals{
		pointTrigger: containsAny(norm, v.pointTriggers),
		negative:     containsAny(norm, v.negative),
	}

	// An undo word that names a point ("cancelar ponto time b", "desfazer
	// ponto") is a correction of that point, not a global undo.
	if containsAny(norm, v.undo) {
		if !sig.pointTrigger {
			tr.add("undo", "keyword")
			in.Type = TypeUndo
			in.Confidence = confCertain
			in.Debug = tr.String()
			return in
		}
		sig.negative = true
		tr.add("undo", "correction")
	}

	var how string
	sig.skill, how = detectSkill(norm, v)
	if sig.skill != SkillNone {
		tr.add("skill", fmt.Sprintf("%s(%s)", sig.skill, how))
	}

	u := newUtterance(norm, v, mc)
	team, conf := TeamNone, 0.0
	if tm, ok := resolveTeam(u, p.fuzzy); ok {
		team, conf = tm.team, tm.confidence
		tr.add("team", fmt.Sprintf("%s(%s)", tm.team, tm.tier))
	}

	var player *rosterEntry
	if pm, ok := resolvePlayer(u, p.fuzzy); ok {
		chosen, candidates := pickPlayer(pm, team)
		if chosen == nil {
			tr.add("player", fmt.Sprintf("ambiguous(%d)", len(candidates)))
			in.IsAmbiguous = true
			in.Candidates = names(candidates)
			in.Debug = tr.String()
			return in
		}
		player = chosen
		tr.add("player", fmt.Sprintf("%s(%d)", chosen.player.Name, pm.score))

		playerConf := float64(pm.score) / 100
		switch {
		case team == TeamNone:
			team, conf = player.team, playerConf
		case team != player.team:
			in.DomainConflict = &DomainConflict{
				Player:       *player.ref(),
				DetectedTeam: team,
				PlayerTeam:   player.team,
				Skill:        sig.skill,
				RawText:      text,
			}
			tr.add("conflict", fmt.Sprintf("said %s, roster %s", team, player.team))
			team, conf = player.team, playerConf
		default:
			conf = max(conf, playerConf)
		}
	}

	if team == TeamNone {
		if inf, ok := inferTeam(sig, mc); ok {
			team, conf = inf.team, inf.confidence
			tr.add("rule", inf.rule)
		}
	}

	in.Skill = sig.skill
	in.IsNegative = sig.negative
	in.Team = team
	if player != nil {
		in.Player = player.ref()
	}

	switch {
	case containsAny(norm, v.swap) && !containsAny(norm, v.timeout) && !sig.pointTrigger:
		in = Intent{Type: TypeSwap, Confidence: confCertain, RawText: text}
	case containsAny(norm, v.timeout):
		in.Type = TypeTimeout
		in.Confidence = conf
		in.RequiresMoreInfo = team == TeamNone
	case containsAny(norm, v.server) && sig.skill == SkillNone && !sig.pointTrigger:
		in.Type = TypeServer
		in.Confidence = conf
		if team == TeamNone && mc.ServingTeam != TeamNone {
			in.Team = mc.ServingTeam.Opponent()
			in.Confidence = confSideOut
			tr.add("rule", "side-out")
		}
		in.RequiresMoreInfo = in.Team == TeamNone
	case team != TeamNone:
		in.Type = TypePoint
		in.Confidence = conf
	case sig.skill != SkillNone && mc.StatsEnabled:
		in.Type = TypeUnknown
		in.RequiresMoreInfo = true
	default:
		in.Type = TypeUnknown
	}

	if (in.Type == TypePoint || in.Type == TypeTimeout) && mc.StatsEnabled &&
		!in.IsNegative && in.Skill != SkillNone && in.Player == nil {
		in.RequiresMoreInfo = true
	}

	tr.add("type", string(in.Type))
	in.Debug = tr.String()
	return in
}

// FollowUp is what a follow-up utterance contributes to a held intent.
type FollowUp struct {
	Team   Team
	Player *PlayerRef
}

// FollowUp scans text for an explicit team cue and, when one is named with
// reasonable certainty, a player. It does not classify the utterance.
func (p *Parser) FollowUp(text string, lang Language, mc MatchContext) FollowUp {
	if mc.MatchOver {
		return FollowUp{}
	}
	v := vocabularyFor(lang)
	u := newUtterance(normalize(text, v.numbers, v.rewrites), v, mc)

	team, _ := teamCue(u, p.fuzzy)
	pm, ok := resolvePlayer(u, p.fuzzy)
	if !ok || pm.score < scoreNamePrefix {
		return FollowUp{Team: team}
	}
	chosen, _ := pickPlayer(pm, team)
	if chosen == nil {
		return FollowUp{Team: team}
	}
	return FollowUp{Team: chosen.team, Player: chosen.ref()}
}

// pickPlayer narrows a player match with an independently resolved team.
// A nil result means the match stays ambiguous; candidates are then the
// players still in contention.
func pickPlayer(pm playerMatch, team Team) (*rosterEntry, []rosterEntry) {
	if !pm.ambiguous() {
		e := pm.entry
		return &e, nil
	}
	if team == TeamNone {
		return nil, pm.candidates
	}
	var onTeam []rosterEntry
	for _, c := range pm.candidates {
		if c.team == team {
			onTeam = append(onTeam, c)
		}
	}
	switch len(onTeam) {
	case 0:
		return nil, pm.candidates
	case 1:
		return &onTeam[0], nil
	}
	return nil, onTeam
}

// detectSkill returns the first skill whose compound phrase, then single
// keyword, appears in text.
func detectSkill(text string, v *vocabulary) (Skill, string) {
	for _, sp := range v.compounds {
		if containsAny(text, sp.phrases) {
			return sp.skill, "compound"
		}
	}
	for _, sp := range v.singles {
		if containsAny(text, sp.phrases) {
			return sp.skill, "keyword"
		}
	}
	return SkillNone, ""
}

func names(entries []rosterEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.player.Name
	}
	return out
}

// trace collects the decisions taken while parsing for [Intent.Debug].
type trace struct {
	parts []string
}

func (t *trace) add(key, value string) {
	t.parts = append(t.parts, key+"="+value)
}

func (t *trace) String() string {
	return strings.Join(t.parts, "; ")
}
