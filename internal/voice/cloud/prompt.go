package cloud

import (
	"fmt"
	"strings"

	"github.com/MrWong99/courtside/internal/voice/intent"
)

const systemPromptTemplate = `You interpret voice commands spoken by a volleyball scorekeeper.
The command may be in Portuguese, English or Spanish and may contain speech recognition errors.

Match:
Team A: %q
%sTeam B: %q
%s
Rules:
- Identify the team (A or B) by name similarity, or by the team of the named player.
- Identify the player by name or jersey number similarity and answer with their id.
- Skills: ace, block, attack, opponent_error (opponent fault or ball out), generic.
- "remove point" or "correct the score" means isNegative true.
- If the text is not a scoring command, answer type "unknown".

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"type": "point|timeout|server|swap|undo|unknown", "team": "A|B|", "playerId": "<id or empty>", "skill": "attack|block|ace|opponent_error|generic|", "isNegative": false}`

// buildSystemPrompt formats the system prompt with the roster.
func buildSystemPrompt(r Roster) string {
	return fmt.Sprintf(systemPromptTemplate,
		r.TeamAName, formatPlayers(r.PlayersA),
		r.TeamBName, formatPlayers(r.PlayersB),
	)
}

func formatPlayers(players []intent.Player) string {
	if len(players) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range players {
		sb.WriteString("  - id=")
		sb.WriteString(p.ID)
		sb.WriteString(" name=")
		sb.WriteString(p.Name)
		if p.Number > 0 {
			fmt.Fprintf(&sb, " #%d", p.Number)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
