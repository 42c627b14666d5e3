// Package cloud resolves transcripts the local parser could not interpret by
// asking a language model.
//
// The model only ever proposes an intent. Every field of the answer is
// checked against the same closed enums the local parser uses, and a player
// reference must name someone on the supplied roster. Anything outside that
// allow-list is rejected with [ErrInvalidResponse], so a hallucinated answer
// can never reach the scoring engine.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/pkg/provider/llm"
)

const (
	// Confidence is attached to every accepted model answer.
	Confidence = 0.9

	defaultTemperature = 0.0
	defaultMaxTokens   = 150
)

var (
	// ErrNotRecognized is returned when the model answered "unknown".
	ErrNotRecognized = errors.New("cloud: command not recognized")

	// ErrInvalidResponse is returned when the model answer is malformed or
	// falls outside the allowed vocabulary.
	ErrInvalidResponse = errors.New("cloud: invalid response")
)

// Roster is the match information shared with the model.
type Roster struct {
	TeamAName string
	TeamBName string
	PlayersA  []intent.Player
	PlayersB  []intent.Player
}

// RosterFrom extracts the roster part of mc.
func RosterFrom(mc intent.MatchContext) Roster {
	return Roster{
		TeamAName: mc.TeamAName,
		TeamBName: mc.TeamBName,
		PlayersA:  mc.PlayersA,
		PlayersB:  mc.PlayersB,
	}
}

// lookup returns the player with id and the team they play for.
func (r Roster) lookup(id string) (intent.Player, intent.Team, bool) {
	for _, p := range r.PlayersA {
		if p.ID == id {
			return p, intent.TeamA, true
		}
	}
	for _, p := range r.PlayersB {
		if p.ID == id {
			return p, intent.TeamB, true
		}
	}
	return intent.Player{}, intent.TeamNone, false
}

// Resolver turns a free-form transcript into an [intent.Intent].
//
// Implementations return [ErrNotRecognized] when no command was found and
// [ErrInvalidResponse] when the backend answered outside the allow-list.
// Implementations must be safe for concurrent use.
type Resolver interface {
	ParseCommand(ctx context.Context, transcript string, roster Roster) (*intent.Intent, error)
}

// Option is a functional option for configuring an [LLMResolver].
type Option func(*LLMResolver)

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(temp float64) Option {
	return func(r *LLMResolver) {
		r.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 150.
func WithMaxTokens(n int) Option {
	return func(r *LLMResolver) {
		r.maxTokens = n
	}
}

// LLMResolver implements [Resolver] on top of an [llm.Provider].
type LLMResolver struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// NewLLMResolver returns an [LLMResolver] backed by provider.
func NewLLMResolver(provider llm.Provider, opts ...Option) *LLMResolver {
	r := &LLMResolver{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ParseCommand implements [Resolver].
func (r *LLMResolver) ParseCommand(ctx context.Context, transcript string, roster Roster) (*intent.Intent, error) {
	req := llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(roster),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
		JSON:         true,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: transcript},
		},
	}

	resp, err := r.llm.Complete(ctx, req)
	switch {
	case errors.Is(err, llm.ErrRefused):
		return nil, fmt.Errorf("%w: %v", ErrNotRecognized, err)
	case errors.Is(err, llm.ErrTruncated):
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	case err != nil:
		return nil, fmt.Errorf("cloud: complete: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}

	in, err := parseResponse(resp.Content, roster)
	if err != nil {
		return nil, err
	}
	in.RawText = transcript
	return in, nil
}

var _ Resolver = (*LLMResolver)(nil)

// answer is the JSON object the model is asked to return.
type answer struct {
	Type       string `json:"type"`
	Team       string `json:"team"`
	PlayerID   string `json:"playerId"`
	Skill      string `json:"skill"`
	IsNegative bool   `json:"isNegative"`
}

// parseResponse validates the model output against the allow-list.
func parseResponse(content string, roster Roster) (*intent.Intent, error) {
	var a answer
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	typ := intent.CommandType(strings.ToLower(strings.TrimSpace(a.Type)))
	if typ == "" || !typ.Valid() {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidResponse, a.Type)
	}
	if typ == intent.TypeUnknown {
		return nil, ErrNotRecognized
	}

	team, ok := parseTeam(a.Team)
	if !ok {
		return nil, fmt.Errorf("%w: team %q", ErrInvalidResponse, a.Team)
	}

	skill := intent.Skill(strings.ToLower(strings.TrimSpace(a.Skill)))
	if !skill.Valid() {
		return nil, fmt.Errorf("%w: skill %q", ErrInvalidResponse, a.Skill)
	}

	in := &intent.Intent{
		Type:       typ,
		Team:       team,
		Skill:      skill,
		IsNegative: a.IsNegative,
		Confidence: Confidence,
	}

	if id := strings.TrimSpace(a.PlayerID); id != "" && !strings.EqualFold(id, "unknown") {
		p, playerTeam, found := roster.lookup(id)
		if !found {
			return nil, fmt.Errorf("%w: player %q not on roster", ErrInvalidResponse, id)
		}
		if in.Team != intent.TeamNone && in.Team != playerTeam {
			return nil, fmt.Errorf("%w: player %q does not play for team %s", ErrInvalidResponse, id, in.Team)
		}
		in.Team = playerTeam
		in.Player = &intent.PlayerRef{ID: p.ID, Name: p.Name}
	}

	if in.Team == intent.TeamNone && !in.IsNegative &&
		(in.Type == intent.TypePoint || in.Type == intent.TypeTimeout) {
		in.RequiresMoreInfo = true
	}
	if in.Type != intent.TypePoint {
		in.Skill = intent.SkillNone
		in.Player = nil
	}
	return in, nil
}

func parseTeam(s string) (intent.Team, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNKNOWN", "NULL":
		return intent.TeamNone, true
	case "A":
		return intent.TeamA, true
	case "B":
		return intent.TeamB, true
	}
	return intent.TeamNone, false
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
