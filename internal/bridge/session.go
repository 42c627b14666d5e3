package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
	"github.com/MrWong99/courtside/pkg/provider/speech"
)

var (
	// ErrUnknownCommand is returned by [Session.Handle] for an unrecognised
	// command type.
	ErrUnknownCommand = errors.New("bridge: unknown command")

	// ErrCloseRequested is returned by [Session.Handle] when the client asks
	// to end the session. The transport removes the session from its [Hub].
	ErrCloseRequested = errors.New("bridge: close requested")

	// ErrMissingMatch is returned when a match command carries no match.
	ErrMissingMatch = errors.New("bridge: match command without match")

	// ErrQueueStalled is logged when a message that must not be shed could
	// not be queued before the enqueue timeout.
	ErrQueueStalled = errors.New("bridge: outbound queue stalled")
)

// SendFunc delivers one message to the client. It is called from a single
// writer goroutine per session, so implementations need not be reentrant.
// It should honour ctx and return promptly when the client is gone.
type SendFunc func(ctx context.Context, m Message) error

// Session binds one client to one [orchestrator.Orchestrator]. Outbound
// messages are queued and written by a dedicated goroutine so scorer and
// notifier callbacks never block on the network. A full queue sheds
// notices; scorer actions wait for room instead.
type Session struct {
	id   string
	orch *orchestrator.Orchestrator
	eng  *remoteEngine
	send SendFunc
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu is read-locked by senders and write-locked by Close, so out is
	// never closed under a blocked sender.
	mu      sync.RWMutex
	out     chan Message
	closed  bool
	timeout time.Duration
}

func newSession(id string, send SendFunc, queue int, timeout time.Duration, log *slog.Logger, opts []orchestrator.Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      id,
		send:    send,
		log:     log.With("session_id", id),
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan Message, queue),
		timeout: timeout,
	}
	s.eng = &remoteEngine{s: s}

	opts = append(slices.Clone(opts),
		orchestrator.WithSessionID(id),
		orchestrator.WithNotifier(notifier{s}),
		orchestrator.WithLogger(s.log),
	)
	s.orch = orchestrator.New(s.eng, scorer{s}, opts...)

	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Orchestrator returns the session's orchestrator.
func (s *Session) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Handle applies one client command. Errors are also reported to the client
// as an error message.
func (s *Session) Handle(ctx context.Context, cmd Command) error {
	err := s.apply(ctx, cmd)
	switch {
	case errors.Is(err, ErrCloseRequested):
		return err
	case err != nil:
		s.enqueue(Message{Type: MsgError, Error: err.Error()})
	}
	if isControl(cmd.Type) {
		s.enqueue(Message{Type: MsgState, State: s.snapshot()})
	}
	return err
}

func (s *Session) apply(ctx context.Context, cmd Command) error {
	o := s.orch
	switch cmd.Type {
	case CmdResult:
		s.eng.callbacks().result(speech.Result{Text: cmd.Text, IsFinal: cmd.Final})
	case CmdInterim:
		s.eng.callbacks().interim(cmd.Text)
	case CmdEngineStatus:
		s.eng.callbacks().status(cmd.Listening)
	case CmdEngineError:
		s.eng.callbacks().fail(fmt.Errorf("bridge: engine: %s", cmd.Text))

	case CmdMatch:
		if cmd.Match == nil {
			return ErrMissingMatch
		}
		o.UpdateMatch(*cmd.Match)
	case CmdReset:
		o.ResetSession()
		if cmd.Match != nil {
			o.UpdateMatch(*cmd.Match)
		}
	case CmdStart:
		return o.StartListening(ctx)
	case CmdStop:
		return o.StopListening()
	case CmdToggle:
		return o.ToggleListening(ctx)
	case CmdConfirm:
		return o.ConfirmPending(cmd.Team)
	case CmdCancel:
		return o.CancelPending()
	case CmdResolve:
		return o.ResolveDomainConflict(cmd.UseDetectedTeam)
	case CmdCancelConflict:
		return o.CancelDomainConflict()
	case CmdState:
	case CmdClose:
		return ErrCloseRequested
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func isControl(t CommandType) bool {
	switch t {
	case CmdResult, CmdInterim, CmdEngineStatus, CmdEngineError, CmdClose:
		return false
	}
	return true
}

func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		State:    s.orch.State().String(),
		Conflict: s.orch.Conflict(),
		History:  len(s.orch.History()),
	}
	if p := s.orch.Pending(); p != nil {
		snap.Pending = &p.Intent
	}
	return snap
}

// Close stops the orchestrator, flushes queued messages and stops the
// writer. It is idempotent.
func (s *Session) Close() error {
	err := s.orch.Close()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	s.wg.Wait()
	s.cancel()
	return err
}

// enqueue queues m for the writer. Notices and hide requests are dropped
// when the queue is full. Every other message, scorer actions above all,
// waits for room until the enqueue timeout.
func (s *Session) enqueue(m Message) {
	m.Session = s.id
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.out <- m:
		return
	default:
	}
	if sheddable(m.Type) {
		s.log.Warn("outbound queue full, dropping message", "type", m.Type)
		return
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case s.out <- m:
	case <-timer.C:
		s.log.Error("message lost", "type", m.Type, "action", m.Action, "err", ErrQueueStalled)
	case <-s.ctx.Done():
	}
}

// sheddable reports whether a message of type t may be dropped under
// backpressure.
func sheddable(t MessageType) bool {
	return t == MsgNotice || t == MsgHide
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for m := range s.out {
		if err := s.send(s.ctx, m); err != nil {
			s.log.Debug("send message", "type", m.Type, "err", err)
		}
	}
}

// ── speech engine ────────────────────────────────────────────────────────────

// remoteEngine is a [speech.Engine] whose recognizer runs on the client.
// Start and Stop are forwarded as messages; results arrive through
// [Session.Handle].
type remoteEngine struct {
	s *Session

	mu sync.Mutex
	cb speech.Callbacks
}

var _ speech.Engine = (*remoteEngine)(nil)

func (e *remoteEngine) SetCallbacks(cb speech.Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cb = cb
}

func (e *remoteEngine) Start(_ context.Context, language string) error {
	e.s.enqueue(Message{Type: MsgEngineStart, Language: language})
	return nil
}

func (e *remoteEngine) Stop() error {
	e.s.enqueue(Message{Type: MsgEngineStop})
	return nil
}

func (e *remoteEngine) callbacks() engineCallbacks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engineCallbacks(e.cb)
}

// engineCallbacks adds nil-safe invokers to [speech.Callbacks].
type engineCallbacks speech.Callbacks

func (c engineCallbacks) result(r speech.Result) {
	if c.OnResult != nil {
		c.OnResult(r)
	}
}

func (c engineCallbacks) interim(text string) {
	if c.OnInterimFeedback != nil {
		c.OnInterimFeedback(text)
	}
}

func (c engineCallbacks) status(listening bool) {
	if c.OnListeningStatusChanged != nil {
		c.OnListeningStatusChanged(listening)
	}
}

func (c engineCallbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// ── scorer and notifier ──────────────────────────────────────────────────────

type scorer struct{ s *Session }

var _ orchestrator.Scorer = scorer{}

func (sc scorer) action(a Action) {
	sc.s.enqueue(Message{Type: MsgAction, Action: &a})
}

func (sc scorer) AddPoint(team intent.Team, playerID string, skill intent.Skill) {
	sc.action(Action{Kind: ActionAddPoint, Team: team, PlayerID: playerID, Skill: skill})
}

func (sc scorer) SubtractPoint(team intent.Team) {
	sc.action(Action{Kind: ActionSubtractPoint, Team: team})
}

func (sc scorer) Undo() { sc.action(Action{Kind: ActionUndo}) }

func (sc scorer) CallTimeout(team intent.Team) {
	sc.action(Action{Kind: ActionTimeout, Team: team})
}

func (sc scorer) SetServingTeam(team intent.Team) {
	sc.action(Action{Kind: ActionServingTeam, Team: team})
}

func (sc scorer) SwapSides() { sc.action(Action{Kind: ActionSwapSides}) }

type notifier struct{ s *Session }

var _ orchestrator.Notifier = notifier{}

func (n notifier) Notify(notice orchestrator.Notice) {
	n.s.enqueue(Message{Type: MsgNotice, Notice: &notice})
}

func (n notifier) Hide() { n.s.enqueue(Message{Type: MsgHide}) }
