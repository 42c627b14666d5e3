package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/courtside/internal/voice/cloud"
	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
	speechmock "github.com/MrWong99/courtside/pkg/provider/speech/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// fakeScorer records scorer calls as short strings.
type fakeScorer struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeScorer) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *fakeScorer) AddPoint(team intent.Team, playerID string, skill intent.Skill) {
	s.record("add %s %s %s", team, playerID, skill)
}
func (s *fakeScorer) SubtractPoint(team intent.Team)  { s.record("subtract %s", team) }
func (s *fakeScorer) Undo()                           { s.record("undo") }
func (s *fakeScorer) CallTimeout(team intent.Team)    { s.record("timeout %s", team) }
func (s *fakeScorer) SetServingTeam(team intent.Team) { s.record("server %s", team) }
func (s *fakeScorer) SwapSides()                      { s.record("swap") }

func (s *fakeScorer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// fakeNotifier records notices.
type fakeNotifier struct {
	mu      sync.Mutex
	notices []orchestrator.Notice
	hides   int
}

func (n *fakeNotifier) Notify(notice orchestrator.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) Hide() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hides++
}

func (n *fakeNotifier) Kinds() []orchestrator.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]orchestrator.NoticeKind, 0, len(n.notices))
	for _, notice := range n.notices {
		kinds = append(kinds, notice.Kind)
	}
	return kinds
}

func (n *fakeNotifier) Last(kind orchestrator.NoticeKind) (orchestrator.Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notices) - 1; i >= 0; i-- {
		if n.notices[i].Kind == kind {
			return n.notices[i], true
		}
	}
	return orchestrator.Notice{}, false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeResolver answers with fn.
type fakeResolver struct {
	fn func(ctx context.Context, transcript string, roster cloud.Roster) (*intent.Intent, error)

	mu    sync.Mutex
	calls []string
}

func (r *fakeResolver) ParseCommand(ctx context.Context, transcript string, roster cloud.Roster) (*intent.Intent, error) {
	r.mu.Lock()
	r.calls = append(r.calls, transcript)
	r.mu.Unlock()
	return r.fn(ctx, transcript, roster)
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func matchContext() intent.MatchContext {
	return intent.MatchContext{
		TeamAName: "Flamengo",
		TeamBName: "Botafogo",
		PlayersA: []intent.Player{
			{ID: "a1", Name: "João Silva", Number: 7},
			{ID: "a2", Name: "Carlos Lima", Number: 10},
		},
		PlayersB: []intent.Player{
			{ID: "b1", Name: "Ana Paula", Number: 3},
		},
		CurrentSet: 1,
	}
}

type harness struct {
	engine   *speechmock.Engine
	scorer   *fakeScorer
	notifier *fakeNotifier
	clock    *fakeClock
	orch     *orchestrator.Orchestrator
}

func newHarness(t *testing.T, opts ...orchestrator.Option) *harness {
	t.Helper()
	h := &harness{
		engine:   &speechmock.Engine{},
		scorer:   &fakeScorer{},
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)},
	}
	opts = append([]orchestrator.Option{
		orchestrator.WithNotifier(h.notifier),
		orchestrator.WithClock(h.clock.Now),
	}, opts...)
	h.orch = orchestrator.New(h.engine, h.scorer, opts...)
	h.orch.UpdateMatch(matchContext())
	t.Cleanup(func() { _ = h.orch.Close() })

	if err := h.orch.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	return h
}

// say delivers a final result. Final results flush synchronously.
func (h *harness) say(text string) {
	h.engine.EmitResult(text, true)
}

func wantCalls(t *testing.T, s *fakeScorer, want ...string) {
	t.Helper()
	if got := s.Calls(); !slices.Equal(got, want) {
		t.Errorf("scorer calls = %q, want %q", got, want)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── listening ────────────────────────────────────────────────────────────────

func TestOrchestrator_Listening(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.WithLanguage(intent.English))
	if got := h.engine.StartCalls; !slices.Equal(got, []string{"en-US"}) {
		t.Errorf("engine start languages = %q, want [en-US]", got)
	}
	if s := h.orch.State(); s != orchestrator.StateListening {
		t.Errorf("State = %s, want listening", s)
	}

	if err := h.orch.ToggleListening(context.Background()); err != nil {
		t.Fatalf("ToggleListening: %v", err)
	}
	if h.engine.Listening() || h.orch.State() != orchestrator.StateIdle {
		t.Errorf("after toggle: engine listening=%v state=%s, want stopped/idle", h.engine.Listening(), h.orch.State())
	}

	if err := h.orch.ToggleListening(context.Background()); err != nil {
		t.Fatalf("ToggleListening: %v", err)
	}
	if !h.engine.Listening() {
		t.Error("engine not listening after second toggle")
	}
}

func TestOrchestrator_StartError(t *testing.T) {
	t.Parallel()

	engine := &speechmock.Engine{StartErr: errors.New("mic denied")}
	o := orchestrator.New(engine, &fakeScorer{})
	defer o.Close()

	err := o.StartListening(context.Background())
	if err == nil || !errors.Is(err, engine.StartErr) {
		t.Fatalf("StartListening err = %v, want wrapped mic error", err)
	}
	if o.State() != orchestrator.StateIdle {
		t.Errorf("State = %s, want idle", o.State())
	}
}

func TestOrchestrator_EngineCallbacks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.engine.EmitInterimFeedback("ponto do")
	h.engine.EmitError(errors.New("network"))

	if n, ok := h.notifier.Last(orchestrator.NoticeInterim); !ok || n.Transcript != "ponto do" {
		t.Errorf("interim notice = %+v, %v", n, ok)
	}
	if n, ok := h.notifier.Last(orchestrator.NoticeError); !ok || n.Message != "network" {
		t.Errorf("error notice = %+v, %v", n, ok)
	}

	h.engine.EmitStatus(false)
	if s := h.orch.State(); s != orchestrator.StateIdle {
		t.Errorf("State after engine stop = %s, want idle", s)
	}
}

func TestOrchestrator_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.orch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.orch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if h.engine.Listening() {
		t.Error("engine still listening after Close")
	}
	if err := h.orch.StartListening(context.Background()); !errors.Is(err, orchestrator.ErrClosed) {
		t.Errorf("StartListening after Close = %v, want ErrClosed", err)
	}

	h.say("ponto do Flamengo")
	wantCalls(t, h.scorer)
}

// ── confidence gate ──────────────────────────────────────────────────────────

func TestOrchestrator_ExecuteBand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("ponto do Flamengo")

	wantCalls(t, h.scorer, "add A  ")
	hist := h.orch.History()
	if len(hist) != 1 || hist[0].Source != "local" || hist[0].Intent.Team != intent.TeamA {
		t.Fatalf("History = %+v", hist)
	}
	if !hist[0].At.Equal(h.clock.Now()) {
		t.Errorf("History[0].At = %v, want %v", hist[0].At, h.clock.Now())
	}
	if _, ok := h.notifier.Last(orchestrator.NoticeExecuted); !ok {
		t.Error("no executed notice")
	}
}

func TestOrchestrator_DispatchMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		mc   func(*intent.MatchContext)
		want string
	}{
		{"ponto João Silva", nil, "add A a1 "},
		{"cancelar ponto time b", nil, "subtract B"},
		{"desfazer", nil, "undo"},
		{"trocar lados", nil, "swap"},
		{"tempo Flamengo", nil, "timeout A"},
		{"saque do Botafogo", nil, "server B"},
		{"ace", func(mc *intent.MatchContext) { mc.ServingTeam = intent.TeamB }, "add B  ace"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			if tt.mc != nil {
				mc := matchContext()
				tt.mc(&mc)
				h.orch.UpdateMatch(mc)
			}
			h.say(tt.text)
			wantCalls(t, h.scorer, tt.want)
		})
	}
}

func TestOrchestrator_ConfirmBandWaitsForCue(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mc := matchContext()
	mc.LastScorer = intent.TeamB
	h.orch.UpdateMatch(mc)

	// Rally continuation infers the last scorer with reduced confidence.
	h.say("ponto")
	wantCalls(t, h.scorer)
	p := h.orch.Pending()
	if p == nil || p.Intent.Team != intent.TeamB {
		t.Fatalf("Pending = %+v, want held point for B", p)
	}
	if s := h.orch.State(); s != orchestrator.StatePendingConfirmation {
		t.Errorf("State = %s, want pending_confirmation", s)
	}
	if _, ok := h.notifier.Last(orchestrator.NoticeConfirm); !ok {
		t.Error("no confirm notice")
	}

	// No cue: dropped, still pending.
	h.say("desfazer")
	wantCalls(t, h.scorer)
	if h.orch.Pending() == nil {
		t.Fatal("pending intent lost after an utterance without a cue")
	}

	h.say("time a")
	wantCalls(t, h.scorer, "add A  ")
	if h.orch.Pending() != nil {
		t.Error("pending intent kept after cue")
	}
	if hist := h.orch.History(); len(hist) != 1 || hist[0].Source != "confirm" {
		t.Errorf("History = %+v, want one confirm record", hist)
	}
}

func TestOrchestrator_TimeoutWithoutTeamIsHeld(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("timeout")
	if p := h.orch.Pending(); p == nil || p.Intent.Type != intent.TypeTimeout {
		t.Fatalf("Pending = %+v, want held timeout", p)
	}

	if err := h.orch.ConfirmPending(intent.TeamNone); !errors.Is(err, orchestrator.ErrInvalidTeam) {
		t.Errorf("ConfirmPending(none) = %v, want ErrInvalidTeam", err)
	}
	if err := h.orch.ConfirmPending(intent.TeamB); err != nil {
		t.Fatalf("ConfirmPending: %v", err)
	}
	wantCalls(t, h.scorer, "timeout B")
	if err := h.orch.ConfirmPending(intent.TeamB); !errors.Is(err, orchestrator.ErrNoPending) {
		t.Errorf("second ConfirmPending = %v, want ErrNoPending", err)
	}
}

func TestOrchestrator_FollowUpAttachesPlayer(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mc := matchContext()
	mc.StatsEnabled = true
	h.orch.UpdateMatch(mc)

	h.say("bloqueio Flamengo")
	if p := h.orch.Pending(); p == nil || !p.Intent.RequiresMoreInfo {
		t.Fatalf("Pending = %+v, want point waiting for a player", p)
	}

	h.say("foi o Carlos Lima")
	wantCalls(t, h.scorer, "add A a2 block")
}

func TestOrchestrator_CancelPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("timeout")
	if err := h.orch.CancelPending(); err != nil {
		t.Fatalf("CancelPending: %v", err)
	}
	if err := h.orch.CancelPending(); !errors.Is(err, orchestrator.ErrNoPending) {
		t.Errorf("second CancelPending = %v, want ErrNoPending", err)
	}

	if s := h.orch.State(); s != orchestrator.StateListening {
		t.Errorf("State = %s, want listening", s)
	}
}

func TestOrchestrator_PendingSurvivesListeningChanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("timeout")

	h.engine.EmitStatus(false)
	h.engine.EmitStatus(true)
	if err := h.orch.StopListening(); err != nil {
		t.Fatalf("StopListening: %v", err)
	}
	if err := h.orch.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if h.orch.Pending() == nil {
		t.Fatal("pending intent lost across listening sessions")
	}

	h.say("visitante")
	wantCalls(t, h.scorer, "timeout B")
}

func TestOrchestrator_PendingTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.WithPendingTimeout(10*time.Second))
	h.say("timeout")
	if h.orch.Pending() == nil {
		t.Fatal("timeout not held")
	}

	h.clock.Advance(11 * time.Second)
	if h.orch.Pending() != nil {
		t.Error("pending intent survived its timeout")
	}
	if err := h.orch.ConfirmPending(intent.TeamA); !errors.Is(err, orchestrator.ErrNoPending) {
		t.Errorf("ConfirmPending after expiry = %v, want ErrNoPending", err)
	}

	// An expired pending intent no longer captures follow-ups.
	h.say("ponto do Botafogo")
	wantCalls(t, h.scorer, "add B  ")
}

func TestOrchestrator_Unrecognized(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.engine.EmitResult("blá blá", false)
	time.Sleep(600 * time.Millisecond)
	if _, ok := h.notifier.Last(orchestrator.NoticeNotRecognized); ok {
		t.Error("interim text reported as not recognized")
	}

	h.say("abacaxi")
	n, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
	if !ok || n.Transcript != "abacaxi" {
		t.Errorf("not recognized notice = %+v, %v", n, ok)
	}
	wantCalls(t, h.scorer)
}

func TestOrchestrator_Ambiguous(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mc := matchContext()
	mc.PlayersA = append(mc.PlayersA, intent.Player{ID: "a3", Name: "Maria Silva"})
	mc.PlayersB = append(mc.PlayersB, intent.Player{ID: "b3", Name: "Maria Souza"})
	h.orch.UpdateMatch(mc)

	h.say("ponto Maria")
	wantCalls(t, h.scorer)
	n, ok := h.notifier.Last(orchestrator.NoticeAmbiguous)
	if !ok || !slices.Equal(n.Candidates, []string{"Maria Silva", "Maria Souza"}) {
		t.Errorf("ambiguous notice = %+v, %v", n, ok)
	}
	if h.orch.Pending() != nil {
		t.Error("ambiguous intent was held")
	}
}

func TestOrchestrator_MatchOverIsInert(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	mc := matchContext()
	mc.MatchOver = true
	h.orch.UpdateMatch(mc)

	for _, text := range []string{"ponto do Flamengo", "desfazer", "trocar lados"} {
		h.say(text)
	}
	wantCalls(t, h.scorer)
	if _, ok := h.notifier.Last(orchestrator.NoticeNotRecognized); ok {
		t.Error("match-over transcript reported as not recognized")
	}
}

// ── domain conflicts ─────────────────────────────────────────────────────────

func TestOrchestrator_DomainConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		useDetectedTeam bool
		want            string
	}{
		{"detected team wins", true, "add B  "},
		{"roster team wins", false, "add A a2 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)

			h.say("ponto Carlos Lima time b")
			wantCalls(t, h.scorer)
			dc := h.orch.Conflict()
			if dc == nil || dc.Player.ID != "a2" {
				t.Fatalf("Conflict = %+v, want conflict for a2", dc)
			}
			if s := h.orch.State(); s != orchestrator.StateDomainConflict {
				t.Errorf("State = %s, want domain_conflict", s)
			}

			// Further transcripts wait for the decision.
			h.say("ponto do Flamengo")
			wantCalls(t, h.scorer)

			if err := h.orch.ResolveDomainConflict(tt.useDetectedTeam); err != nil {
				t.Fatalf("ResolveDomainConflict: %v", err)
			}
			wantCalls(t, h.scorer, tt.want)
			if h.orch.Conflict() != nil {
				t.Error("conflict kept after resolution")
			}
		})
	}
}

func TestOrchestrator_CancelDomainConflict(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.orch.CancelDomainConflict(); !errors.Is(err, orchestrator.ErrNoConflict) {
		t.Errorf("CancelDomainConflict without conflict = %v, want ErrNoConflict", err)
	}

	h.say("ponto Carlos Lima time b")
	if err := h.orch.CancelDomainConflict(); err != nil {
		t.Fatalf("CancelDomainConflict: %v", err)
	}
	if err := h.orch.ResolveDomainConflict(true); !errors.Is(err, orchestrator.ErrNoConflict) {
		t.Errorf("ResolveDomainConflict after cancel = %v, want ErrNoConflict", err)
	}
	wantCalls(t, h.scorer)
}

// ── deduplication and history ────────────────────────────────────────────────

func TestOrchestrator_DeduplicatesAcrossUtterances(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("ponto do Flamengo")
	h.say("ponto time a")
	wantCalls(t, h.scorer, "add A  ")

	h.clock.Advance(2 * time.Second)
	h.say("ponto do Flamengo")
	wantCalls(t, h.scorer, "add A  ", "add A  ")
}

func TestOrchestrator_StartListeningResetsDedup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("ponto do Flamengo")
	if err := h.orch.StopListening(); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.say("ponto do Flamengo")
	wantCalls(t, h.scorer, "add A  ", "add A  ")
}

func TestOrchestrator_ConfirmRejectedByDedup(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("tempo Flamengo")
	h.say("timeout")
	err := h.orch.ConfirmPending(intent.TeamA)
	if !errors.Is(err, orchestrator.ErrRejected) {
		t.Errorf("ConfirmPending = %v, want ErrRejected", err)
	}
	wantCalls(t, h.scorer, "timeout A")
}

func TestOrchestrator_HistoryCap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.WithHistorySize(3))
	for i := 0; i < 5; i++ {
		h.say("trocar lados")
		h.clock.Advance(time.Second)
		h.engine.EmitStatus(false)
	}
	if got := len(h.orch.History()); got != 3 {
		t.Errorf("len(History) = %d, want 3", got)
	}
	if got := len(h.scorer.Calls()); got != 5 {
		t.Errorf("scorer calls = %d, want 5", got)
	}
}

func TestOrchestrator_ResetSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say("ponto do Flamengo")
	h.say("timeout")

	h.orch.ResetSession()
	if h.orch.Pending() != nil || len(h.orch.History()) != 0 {
		t.Error("ResetSession kept pending intent or history")
	}

	h.say("ponto do Flamengo")
	wantCalls(t, h.scorer, "add A  ", "add A  ")
}
