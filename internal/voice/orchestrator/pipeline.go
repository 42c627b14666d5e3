package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/intent"
)

// ErrRejected is returned when a command is dropped before dispatch. The
// wrapped message carries the reason.
var ErrRejected = errors.New("orchestrator: command rejected")

// Rejection reasons reported on [observe.Metrics.CommandsRejected] in
// addition to the deduplicator's.
const (
	reasonMatchOver     = "match_over"
	reasonIncomplete    = "incomplete"
	reasonNotRecognized = "not_recognized"
	reasonHeld          = "held"
)

// handleTranscript is the buffer's flush target.
func (o *Orchestrator) handleTranscript(text string, isFinal bool) {
	ctx := o.ctx

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.expireLocked()
	mc := o.match
	inConflict := o.conflict != nil
	hasPending := o.pending != nil
	o.mu.Unlock()

	if inConflict {
		o.log.Debug("domain conflict active, transcript ignored", "text", text)
		return
	}
	if hasPending {
		o.followUp(ctx, text, mc)
		return
	}

	start := time.Now()
	in := o.parser.Parse(text, o.cfg.language, mc)
	o.metrics().ParseDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("type", string(in.Type))),
	)
	o.log.Debug("transcript parsed",
		"text", text,
		"final", isFinal,
		"type", in.Type,
		"team", in.Team,
		"confidence", in.Confidence,
		"trace", in.Debug,
	)
	o.route(ctx, in, isFinal, observe.SourceLocal)
}

// route applies the confidence gate to a parsed intent.
func (o *Orchestrator) route(ctx context.Context, in intent.Intent, isFinal bool, source string) {
	switch {
	case in.Type == intent.TypeUndo || in.Type == intent.TypeSwap:
		_ = o.execute(ctx, in, source)
	case in.DomainConflict != nil:
		o.holdConflict(ctx, in)
	case in.IsAmbiguous:
		o.metrics().RecordHeld(ctx, "ambiguous")
		o.notify(Notice{
			Kind:       NoticeAmbiguous,
			Message:    "Which player?",
			Transcript: in.RawText,
			Candidates: in.Candidates,
		})
	case in.RequiresMoreInfo && (in.Type == intent.TypePoint || in.Type == intent.TypeTimeout):
		o.hold(ctx, in, source)
	case in.Type == intent.TypeUnknown || in.Confidence < o.cfg.confirmThreshold:
		o.unrecognized(ctx, in, isFinal, source)
	case in.Confidence >= o.cfg.executeThreshold:
		_ = o.execute(ctx, in, source)
	default:
		o.hold(ctx, in, source)
	}
}

// unrecognized escalates a final transcript to the cloud resolver when one
// is configured, and reports it as not recognized otherwise.
func (o *Orchestrator) unrecognized(ctx context.Context, in intent.Intent, isFinal bool, source string) {
	if !isFinal {
		return
	}
	mc := o.Match()
	if mc.MatchOver {
		return
	}
	if o.cfg.resolver != nil && source == observe.SourceLocal {
		o.escalate(in.RawText, mc)
		return
	}
	o.metrics().RecordRejection(ctx, reasonNotRecognized)
	o.notify(Notice{
		Kind:          NoticeNotRecognized,
		Message:       "Command not recognized",
		Transcript:    in.RawText,
		CorrelationID: observe.CorrelationID(ctx),
	})
}

// hold keeps in as the pending intent. At most one of the pending intent
// and the domain conflict exists; when either is already held, in is
// reported as not recognized instead.
func (o *Orchestrator) hold(ctx context.Context, in intent.Intent, source string) {
	o.mu.Lock()
	o.expireLocked()
	if o.heldLocked() {
		o.mu.Unlock()
		o.refuseHeld(ctx, in)
		return
	}
	o.pending = &Pending{Intent: in, Source: source, Since: o.cfg.now()}
	o.mu.Unlock()

	o.log.Info("intent held for confirmation", "type", in.Type, "confidence", in.Confidence)
	o.metrics().RecordHeld(ctx, "confirm")
	o.notify(Notice{Kind: NoticeConfirm, Message: "Which team?", Transcript: in.RawText, Intent: &in})
}

func (o *Orchestrator) holdConflict(ctx context.Context, in intent.Intent) {
	o.mu.Lock()
	o.expireLocked()
	if o.heldLocked() {
		o.mu.Unlock()
		o.refuseHeld(ctx, in)
		return
	}
	o.conflict = &conflictState{intent: in, since: o.cfg.now()}
	o.mu.Unlock()

	dc := *in.DomainConflict
	o.log.Info("domain conflict",
		"player", dc.Player.ID,
		"detected_team", dc.DetectedTeam,
		"player_team", dc.PlayerTeam,
	)
	o.metrics().RecordHeld(ctx, "conflict")
	o.notify(Notice{
		Kind:       NoticeConflict,
		Message:    fmt.Sprintf("%s does not play for team %s", dc.Player.Name, dc.DetectedTeam),
		Transcript: in.RawText,
		Conflict:   &dc,
	})
}

func (o *Orchestrator) heldLocked() bool {
	return o.pending != nil || o.conflict != nil
}

// refuseHeld drops in because the caller still owes a decision on an
// earlier intent.
func (o *Orchestrator) refuseHeld(ctx context.Context, in intent.Intent) {
	o.log.Debug("decision outstanding, intent dropped", "type", in.Type, "text", in.RawText)
	o.metrics().RecordRejection(ctx, reasonHeld)
	o.notify(Notice{
		Kind:          NoticeNotRecognized,
		Message:       "Command not recognized",
		Transcript:    in.RawText,
		CorrelationID: observe.CorrelationID(ctx),
	})
}

// followUp scans text for a team cue that completes the pending intent.
// An utterance without a cue is dropped.
func (o *Orchestrator) followUp(ctx context.Context, text string, mc intent.MatchContext) {
	fu := o.parser.FollowUp(text, o.cfg.language, mc)
	if fu.Team == intent.TeamNone {
		o.log.Debug("no team cue for pending intent, transcript dropped", "text", text)
		return
	}

	o.mu.Lock()
	p := o.pending
	o.pending = nil
	o.mu.Unlock()
	if p == nil {
		return
	}

	o.hide()
	_ = o.execute(ctx, complete(p.Intent, fu.Team, fu.Player, mc), observe.SourceConfirm)
}

// ConfirmPending assigns team to the pending intent and executes it.
func (o *Orchestrator) ConfirmPending(team intent.Team) error {
	if team != intent.TeamA && team != intent.TeamB {
		return fmt.Errorf("%w: %q", ErrInvalidTeam, team)
	}

	o.mu.Lock()
	o.expireLocked()
	p := o.pending
	o.pending = nil
	mc := o.match
	o.mu.Unlock()
	if p == nil {
		return ErrNoPending
	}

	o.hide()
	return o.execute(o.ctx, complete(p.Intent, team, nil, mc), observe.SourceConfirm)
}

// CancelPending drops the pending intent.
func (o *Orchestrator) CancelPending() error {
	o.mu.Lock()
	o.expireLocked()
	p := o.pending
	o.pending = nil
	o.mu.Unlock()
	if p == nil {
		return ErrNoPending
	}
	o.hide()
	return nil
}

// ResolveDomainConflict executes the conflicting intent. With
// useDetectedTeam the spoken team wins and the player is dropped; otherwise
// the player's roster team wins.
func (o *Orchestrator) ResolveDomainConflict(useDetectedTeam bool) error {
	o.mu.Lock()
	o.expireLocked()
	c := o.conflict
	o.conflict = nil
	o.mu.Unlock()
	if c == nil {
		return ErrNoConflict
	}

	in := c.intent
	dc := in.DomainConflict
	in.DomainConflict = nil
	in.RequiresMoreInfo = false
	if useDetectedTeam {
		in.Team = dc.DetectedTeam
		in.Player = nil
	} else {
		player := dc.Player
		in.Team = dc.PlayerTeam
		in.Player = &player
	}

	o.hide()
	return o.execute(o.ctx, in, observe.SourceConfirm)
}

// CancelDomainConflict drops the active domain conflict.
func (o *Orchestrator) CancelDomainConflict() error {
	o.mu.Lock()
	o.expireLocked()
	c := o.conflict
	o.conflict = nil
	o.mu.Unlock()
	if c == nil {
		return ErrNoConflict
	}
	o.hide()
	return nil
}

// complete fills in the team of a held intent. A player named in the
// follow-up is attached to a point that has none; a player who does not
// play for team is dropped.
func complete(in intent.Intent, team intent.Team, player *intent.PlayerRef, mc intent.MatchContext) intent.Intent {
	in.Team = team
	in.RequiresMoreInfo = false
	if in.Player == nil && player != nil && in.Type == intent.TypePoint {
		in.Player = player
	}
	if in.Player != nil && !onRoster(mc.Roster(team), in.Player.ID) {
		in.Player = nil
	}
	return in
}

func onRoster(players []intent.Player, id string) bool {
	for _, p := range players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ── dispatch ─────────────────────────────────────────────────────────────────

// execute runs in through the deduplicator and dispatches it to the scorer.
func (o *Orchestrator) execute(ctx context.Context, in intent.Intent, source string) error {
	if o.Match().MatchOver {
		return o.reject(ctx, in, reasonMatchOver)
	}
	if !dispatchable(in) {
		return o.reject(ctx, in, reasonIncomplete)
	}
	if dec := o.dedup.CanExecute(in); !dec.Allowed {
		return o.reject(ctx, in, dec.Reason)
	}
	o.dedup.Register(in)

	o.execMu.Lock()
	o.setExecuting(true)
	o.dispatch(in)
	o.setExecuting(false)
	o.execMu.Unlock()

	o.mu.Lock()
	o.history = append([]Record{{Intent: in, Source: source, At: o.cfg.now()}}, o.history...)
	if len(o.history) > o.cfg.historySize {
		o.history = o.history[:o.cfg.historySize]
	}
	o.mu.Unlock()

	o.log.Info("command executed",
		"type", in.Type,
		"team", in.Team,
		"player", in.PlayerID(),
		"skill", in.Skill,
		"negative", in.IsNegative,
		"source", source,
	)
	o.metrics().RecordCommand(ctx, string(in.Type), source)
	o.notify(Notice{Kind: NoticeExecuted, Transcript: in.RawText, Intent: &in})
	return nil
}

// reject drops in and logs the reason at debug level.
func (o *Orchestrator) reject(ctx context.Context, in intent.Intent, reason string) error {
	o.log.Debug("command rejected", "type", in.Type, "team", in.Team, "reason", reason)
	o.metrics().RecordRejection(ctx, reason)
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

func (o *Orchestrator) setExecuting(v bool) {
	o.mu.Lock()
	o.executing = v
	o.mu.Unlock()
}

// dispatchable reports whether in carries everything its scorer call needs.
func dispatchable(in intent.Intent) bool {
	switch in.Type {
	case intent.TypeUndo, intent.TypeSwap:
		return true
	case intent.TypePoint:
		return in.IsNegative || in.Team != intent.TeamNone
	case intent.TypeTimeout, intent.TypeServer:
		return in.Team != intent.TeamNone
	}
	return false
}

// dispatch maps in to exactly one scorer call. A correction without a team
// undoes the last action.
func (o *Orchestrator) dispatch(in intent.Intent) {
	switch in.Type {
	case intent.TypePoint:
		switch {
		case in.IsNegative && in.Team == intent.TeamNone:
			o.scorer.Undo()
		case in.IsNegative:
			o.scorer.SubtractPoint(in.Team)
		default:
			o.scorer.AddPoint(in.Team, in.PlayerID(), in.Skill)
		}
	case intent.TypeTimeout:
		o.scorer.CallTimeout(in.Team)
	case intent.TypeServer:
		o.scorer.SetServingTeam(in.Team)
	case intent.TypeSwap:
		o.scorer.SwapSides()
	case intent.TypeUndo:
		o.scorer.Undo()
	}
}
