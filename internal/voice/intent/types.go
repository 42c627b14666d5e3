// Package intent turns a spoken transcript into a structured scoring [Intent].
//
// The [Parser] is a pure function of its inputs: the same text, [Language]
// and [MatchContext] always produce the same [Intent]. Parsing runs in fixed
// stages:
//
//  1. Normalisation (case, diacritics, punctuation, number words, phonetic
//     corrections for common speech-engine mistakes).
//  2. Global undo detection.
//  3. Skill detection (compound phrases before single keywords).
//  4. Team and player resolution through two independent cascades.
//  5. Contextual inference from match state when no team was resolved.
//  6. Command-type classification with a confidence score.
//
// Each cascade tier and inference rule is a small matcher function evaluated
// in a fixed order, so the priority rules can be tested in isolation.
package intent

// CommandType is the kind of scoring action an utterance asks for.
type CommandType string

const (
	TypePoint   CommandType = "point"
	TypeTimeout CommandType = "timeout"
	TypeServer  CommandType = "server"
	TypeSwap    CommandType = "swap"
	TypeUndo    CommandType = "undo"
	TypeUnknown CommandType = "unknown"
)

// Valid reports whether t is one of the known command types.
func (t CommandType) Valid() bool {
	switch t {
	case TypePoint, TypeTimeout, TypeServer, TypeSwap, TypeUndo, TypeUnknown:
		return true
	}
	return false
}

// Team identifies one side of the match. The zero value means "unresolved".
type Team string

const (
	TeamNone Team = ""
	TeamA    Team = "A"
	TeamB    Team = "B"
)

// Opponent returns the other team. The opponent of [TeamNone] is [TeamNone].
func (t Team) Opponent() Team {
	switch t {
	case TeamA:
		return TeamB
	case TeamB:
		return TeamA
	}
	return TeamNone
}

// Skill is the volleyball fundamental credited for a point.
type Skill string

const (
	SkillNone          Skill = ""
	SkillAttack        Skill = "attack"
	SkillBlock         Skill = "block"
	SkillAce           Skill = "ace"
	SkillOpponentError Skill = "opponent_error"
	SkillGeneric       Skill = "generic"
)

// Valid reports whether s is an empty or known skill.
func (s Skill) Valid() bool {
	switch s {
	case SkillNone, SkillAttack, SkillBlock, SkillAce, SkillOpponentError, SkillGeneric:
		return true
	}
	return false
}

// Language selects the vocabulary used for parsing.
type Language string

const (
	Portuguese Language = "pt"
	English    Language = "en"
	Spanish    Language = "es"
)

// Player is a rostered athlete.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number,omitempty"`
}

// PlayerRef is the part of a [Player] carried on an [Intent].
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Score holds the current points of both teams.
type Score struct {
	A int `json:"a"`
	B int `json:"b"`
}

// MatchContext is the read-only match state supplied with every parse call.
type MatchContext struct {
	TeamAName    string   `json:"teamAName"`
	TeamBName    string   `json:"teamBName"`
	PlayersA     []Player `json:"playersA,omitempty"`
	PlayersB     []Player `json:"playersB,omitempty"`
	StatsEnabled bool     `json:"statsEnabled"`
	ServingTeam  Team     `json:"servingTeam,omitempty"`
	LastScorer   Team     `json:"lastScorer,omitempty"`
	Score        Score    `json:"score"`
	CurrentSet   int      `json:"currentSet"`
	MatchOver    bool     `json:"matchOver"`
}

// Roster returns the players of team t.
func (mc MatchContext) Roster(t Team) []Player {
	switch t {
	case TeamA:
		return mc.PlayersA
	case TeamB:
		return mc.PlayersB
	}
	return nil
}

// TeamName returns the display name of team t.
func (mc MatchContext) TeamName(t Team) string {
	switch t {
	case TeamA:
		return mc.TeamAName
	case TeamB:
		return mc.TeamBName
	}
	return ""
}

// DomainConflict describes an utterance whose named player does not belong
// to the team it also named.
type DomainConflict struct {
	Player       PlayerRef `json:"player"`
	DetectedTeam Team      `json:"detectedTeam"`
	PlayerTeam   Team      `json:"playerTeam"`
	Skill        Skill     `json:"skill,omitempty"`
	RawText      string    `json:"rawText"`
}

// Intent is the parser's structured interpretation of an utterance.
type Intent struct {
	Type             CommandType     `json:"type"`
	Team             Team            `json:"team,omitempty"`
	Player           *PlayerRef      `json:"player,omitempty"`
	Skill            Skill           `json:"skill,omitempty"`
	IsNegative       bool            `json:"isNegative"`
	Confidence       float64         `json:"confidence"`
	RawText          string          `json:"rawText"`
	RequiresMoreInfo bool            `json:"requiresMoreInfo,omitempty"`
	IsAmbiguous      bool            `json:"isAmbiguous,omitempty"`
	Candidates       []string        `json:"candidates,omitempty"`
	DomainConflict   *DomainConflict `json:"domainConflict,omitempty"`
	Debug            string          `json:"debug,omitempty"`
}

// PlayerID returns the ID of the intent's player, or "" if none is set.
func (i Intent) PlayerID() string {
	if i.Player == nil {
		return ""
	}
	return i.Player.ID
}
