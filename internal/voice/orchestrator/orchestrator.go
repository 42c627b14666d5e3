// Package orchestrator drives the voice-command pipeline for one match
// session.
//
// An [Orchestrator] owns a transcript buffer, an intent parser and a command
// deduplicator. It receives recognition results from a [speech.Engine],
// gates each parsed intent by confidence, and dispatches accepted commands
// to a [Scorer]. Intents that need a caller decision are held:
//
//   - a pending intent waits for a spoken team cue or [Orchestrator.ConfirmPending],
//   - a domain conflict waits for [Orchestrator.ResolveDomainConflict].
//
// Transcripts the local parser cannot interpret may be escalated to a
// [cloud.Resolver]. At most one escalation is in flight per session.
//
// An Orchestrator is safe for concurrent use. Engine callbacks, buffer
// timers and cloud results may arrive on any goroutine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/buffer"
	"github.com/MrWong99/courtside/internal/voice/dedup"
	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/pkg/provider/speech"
)

var (
	// ErrNoPending is returned when there is no pending intent to act on.
	ErrNoPending = errors.New("orchestrator: no pending intent")

	// ErrNoConflict is returned when there is no domain conflict to act on.
	ErrNoConflict = errors.New("orchestrator: no domain conflict")

	// ErrEscalationInFlight is reported when a cloud escalation is requested
	// while another one is still running.
	ErrEscalationInFlight = errors.New("orchestrator: cloud escalation already in flight")

	// ErrInvalidTeam is returned when a caller names a team other than A or B.
	ErrInvalidTeam = errors.New("orchestrator: invalid team")

	// ErrClosed is returned by entry points called after [Orchestrator.Close].
	ErrClosed = errors.New("orchestrator: closed")
)

// State is the derived state of an [Orchestrator].
type State int

const (
	StateIdle State = iota
	StateListening
	StateExecuting
	StatePendingConfirmation
	StateDomainConflict
	StateAIEscalation
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateExecuting:
		return "executing"
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateDomainConflict:
		return "domain_conflict"
	case StateAIEscalation:
		return "ai_escalation"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Scorer receives the scoring commands. It is the only place where match
// state changes. Implementations must be safe for concurrent use.
type Scorer interface {
	AddPoint(team intent.Team, playerID string, skill intent.Skill)
	SubtractPoint(team intent.Team)
	Undo()
	CallTimeout(team intent.Team)
	SetServingTeam(team intent.Team)
	SwapSides()
}

// Pending is an intent held until its team is confirmed.
type Pending struct {
	Intent intent.Intent
	// Source is the pipeline stage that produced Intent.
	Source string
	Since  time.Time
}

// Record is one executed command.
type Record struct {
	Intent intent.Intent
	Source string
	At     time.Time
}

type conflictState struct {
	intent intent.Intent
	since  time.Time
}

// Orchestrator is the voice-command controller for one match session.
type Orchestrator struct {
	engine speech.Engine
	scorer Scorer

	cfg    config
	buf    *buffer.Buffer
	dedup  *dedup.Deduplicator
	parser *intent.Parser
	log    *slog.Logger

	escalation *semaphore.Weighted
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	// execMu serializes scorer calls.
	execMu sync.Mutex

	mu         sync.Mutex
	match      intent.MatchContext
	listening  bool
	executing  bool
	escalating bool
	pending    *Pending
	conflict   *conflictState
	// history is most recent first.
	history []Record
	closed  bool
}

// New creates an Orchestrator that listens on engine and dispatches to
// scorer. It registers itself as the engine's callback receiver.
func New(engine speech.Engine, scorer Scorer, opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		engine:     engine,
		scorer:     scorer,
		cfg:        cfg,
		parser:     cfg.parser,
		dedup:      cfg.dedup,
		log:        cfg.logger.With("component", "orchestrator"),
		escalation: semaphore.NewWeighted(1),
		ctx:        ctx,
		cancel:     cancel,
	}
	if o.parser == nil {
		o.parser = intent.NewParser()
	}
	if o.dedup == nil {
		o.dedup = dedup.New(dedup.WithClock(cfg.now))
	}
	o.buf = buffer.New(o.handleTranscript, cfg.bufferOpts...)

	engine.SetCallbacks(speech.Callbacks{
		OnResult:                 o.onResult,
		OnInterimFeedback:        o.onInterimFeedback,
		OnError:                  o.onError,
		OnListeningStatusChanged: o.onListeningStatusChanged,
	})
	return o
}

// ── listening ────────────────────────────────────────────────────────────────

// StartListening begins a listening session. The deduplicator and the
// buffer's repeat cooldown are reset; pending and conflict state are kept.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.mu.Unlock()

	o.dedup.Reset()
	o.buf.ResetCooldown()
	if err := o.engine.Start(ctx, speechLanguage(o.cfg.language)); err != nil {
		return fmt.Errorf("orchestrator: start listening: %w", err)
	}
	o.setListening(true)
	return nil
}

// StopListening ends the listening session. Buffered text is dropped.
func (o *Orchestrator) StopListening() error {
	o.buf.Cancel()
	o.setListening(false)
	if err := o.engine.Stop(); err != nil {
		return fmt.Errorf("orchestrator: stop listening: %w", err)
	}
	return nil
}

// ToggleListening starts listening when idle and stops it otherwise.
func (o *Orchestrator) ToggleListening(ctx context.Context) error {
	o.mu.Lock()
	listening := o.listening
	o.mu.Unlock()
	if listening {
		return o.StopListening()
	}
	return o.StartListening(ctx)
}

func (o *Orchestrator) setListening(v bool) {
	o.mu.Lock()
	o.listening = v
	o.mu.Unlock()
}

// ── engine callbacks ─────────────────────────────────────────────────────────

func (o *Orchestrator) onResult(r speech.Result) {
	o.buf.Push(r.Text, r.IsFinal)
}

func (o *Orchestrator) onInterimFeedback(text string) {
	o.notify(Notice{Kind: NoticeInterim, Transcript: text})
}

func (o *Orchestrator) onError(err error) {
	o.log.Warn("speech engine error", "err", err)
	o.notify(Notice{Kind: NoticeError, Message: err.Error()})
}

// onListeningStatusChanged tracks engine-side starts and stops. It never
// touches pending or conflict state.
func (o *Orchestrator) onListeningStatusChanged(listening bool) {
	if !listening {
		o.buf.Cancel()
	}
	o.setListening(listening)
}

// ── match state ──────────────────────────────────────────────────────────────

// UpdateMatch replaces the match snapshot used for every following parse.
func (o *Orchestrator) UpdateMatch(mc intent.MatchContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.match = mc
}

// Match returns the current match snapshot.
func (o *Orchestrator) Match() intent.MatchContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.match
}

// ResetSession clears deduplication history, command history, and any held
// pending intent or domain conflict.
func (o *Orchestrator) ResetSession() {
	o.dedup.Reset()
	o.buf.Cancel()

	o.mu.Lock()
	o.pending = nil
	o.conflict = nil
	o.history = nil
	o.mu.Unlock()
	o.hide()
}

// History returns executed commands, most recent first.
func (o *Orchestrator) History() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Record(nil), o.history...)
}

// Pending returns the held intent, or nil.
func (o *Orchestrator) Pending() *Pending {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked()
	if o.pending == nil {
		return nil
	}
	p := *o.pending
	return &p
}

// Conflict returns the active domain conflict, or nil.
func (o *Orchestrator) Conflict() *intent.DomainConflict {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked()
	if o.conflict == nil {
		return nil
	}
	c := *o.conflict.intent.DomainConflict
	return &c
}

// State returns the current derived state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expireLocked()
	switch {
	case o.conflict != nil:
		return StateDomainConflict
	case o.pending != nil:
		return StatePendingConfirmation
	case o.escalating:
		return StateAIEscalation
	case o.executing:
		return StateExecuting
	case o.listening:
		return StateListening
	}
	return StateIdle
}

// Close stops listening, cancels an in-flight escalation and waits for it to
// return. The orchestrator cannot be restarted.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	listening := o.listening
	o.mu.Unlock()

	o.cancel()
	o.buf.Cancel()
	o.wg.Wait()

	if listening {
		if err := o.engine.Stop(); err != nil {
			return fmt.Errorf("orchestrator: close: %w", err)
		}
	}
	o.setListening(false)
	return nil
}

// expireLocked drops held state older than the pending timeout. Must be
// called with o.mu held.
func (o *Orchestrator) expireLocked() {
	ttl := o.cfg.pendingTimeout
	if ttl <= 0 {
		return
	}
	now := o.cfg.now()
	if o.pending != nil && now.Sub(o.pending.Since) >= ttl {
		o.log.Debug("pending intent expired", "type", o.pending.Intent.Type)
		o.pending = nil
	}
	if o.conflict != nil && now.Sub(o.conflict.since) >= ttl {
		o.log.Debug("domain conflict expired", "player", o.conflict.intent.DomainConflict.Player.ID)
		o.conflict = nil
	}
}

// speechLanguage maps a parser language to the BCP-47 tag speech engines
// expect.
func speechLanguage(lang intent.Language) string {
	switch lang {
	case intent.English:
		return "en-US"
	case intent.Spanish:
		return "es-ES"
	}
	return "pt-BR"
}

// metrics returns the configured instruments.
func (o *Orchestrator) metrics() *observe.Metrics {
	if o.cfg.metrics != nil {
		return o.cfg.metrics
	}
	return observe.DefaultMetrics()
}
