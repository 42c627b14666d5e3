package intent

// Contextual inference confidences. Rules that lean on the serving team are
// trusted more than rules that guess from the last scorer.
const (
	confInferServe = 0.85
	confInferRally = 0.70
)

// signals is what the parser extracted from an utterance before deciding
// on a team.
type signals struct {
	skill        Skill
	pointTrigger bool
	negative     bool
}

// inference is the result of one contextual rule.
type inference struct {
	team       Team
	confidence float64
	rule       string
}

// inferenceRule fills in a missing team from match state.
type inferenceRule func(s signals, mc MatchContext) (inference, bool)

// inferenceRules are evaluated in order; the first rule that applies wins.
var inferenceRules = []inferenceRule{
	inferAceFromServer,
	inferErrorFromServer,
	inferBlockFromServer,
	inferRallyContinuation,
	inferAttackFromLastScorer,
	inferCorrectionFromLastScorer,
}

func inferTeam(s signals, mc MatchContext) (inference, bool) {
	for _, rule := range inferenceRules {
		if inf, ok := rule(s, mc); ok {
			return inf, true
		}
	}
	return inference{}, false
}

// inferAceFromServer credits an ace to the serving team.
func inferAceFromServer(s signals, mc MatchContext) (inference, bool) {
	if s.skill != SkillAce || mc.ServingTeam == TeamNone {
		return inference{}, false
	}
	return inference{team: mc.ServingTeam, confidence: confInferServe, rule: "ace-server"}, true
}

// inferErrorFromServer credits an opponent error to whoever did not serve,
// or failing that to whoever did not score last.
func inferErrorFromServer(s signals, mc MatchContext) (inference, bool) {
	if s.skill != SkillOpponentError {
		return inference{}, false
	}
	if mc.ServingTeam != TeamNone {
		return inference{team: mc.ServingTeam.Opponent(), confidence: confInferServe, rule: "error-receiver"}, true
	}
	if mc.LastScorer != TeamNone {
		return inference{team: mc.LastScorer.Opponent(), confidence: confInferServe, rule: "error-last-scorer"}, true
	}
	return inference{}, false
}

// inferBlockFromServer credits a block to the receiving team.
func inferBlockFromServer(s signals, mc MatchContext) (inference, bool) {
	if s.skill != SkillBlock || mc.ServingTeam == TeamNone {
		return inference{}, false
	}
	return inference{team: mc.ServingTeam.Opponent(), confidence: confInferServe, rule: "block-receiver"}, true
}

func inferRallyContinuation(s signals, mc MatchContext) (inference, bool) {
	if !s.pointTrigger || s.skill != SkillNone || mc.LastScorer == TeamNone {
		return inference{}, false
	}
	return inference{team: mc.LastScorer, confidence: confInferRally, rule: "rally-continuation"}, true
}

func inferAttackFromLastScorer(s signals, mc MatchContext) (inference, bool) {
	if s.skill != SkillAttack || mc.LastScorer == TeamNone {
		return inference{}, false
	}
	return inference{team: mc.LastScorer, confidence: confInferRally, rule: "attack-last-scorer"}, true
}

func inferCorrectionFromLastScorer(s signals, mc MatchContext) (inference, bool) {
	if !s.negative || mc.LastScorer == TeamNone {
		return inference{}, false
	}
	return inference{team: mc.LastScorer, confidence: confInferRally, rule: "correction-last-scorer"}, true
}
