package orchestrator_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/cloud"
	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func answer(in intent.Intent) func(context.Context, string, cloud.Roster) (*intent.Intent, error) {
	return func(context.Context, string, cloud.Roster) (*intent.Intent, error) {
		return &in, nil
	}
}

func fail(err error) func(context.Context, string, cloud.Roster) (*intent.Intent, error) {
	return func(context.Context, string, cloud.Roster) (*intent.Intent, error) {
		return nil, err
	}
}

func emptyAnswer(context.Context, string, cloud.Roster) (*intent.Intent, error) {
	return nil, nil
}

func counterSum(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestEscalation_ExecutesAllowListedAnswer(t *testing.T) {
	t.Parallel()

	r := &fakeResolver{fn: answer(intent.Intent{
		Type:       intent.TypePoint,
		Team:       intent.TeamA,
		Player:     &intent.PlayerRef{ID: "a1", Name: "João Silva"},
		Skill:      intent.SkillAttack,
		Confidence: cloud.Confidence,
	})}
	h := newHarness(t, orchestrator.WithResolver(r))

	h.say("abacaxi")
	waitFor(t, "scorer call", func() bool { return len(h.scorer.Calls()) == 1 })

	wantCalls(t, h.scorer, "add A a1 attack")
	if got := r.Calls(); !slices.Equal(got, []string{"abacaxi"}) {
		t.Errorf("resolver calls = %q", got)
	}
	hist := h.orch.History()
	if len(hist) != 1 || hist[0].Source != observe.SourceCloud || hist[0].Intent.RawText != "abacaxi" {
		t.Errorf("History = %+v", hist)
	}
	if !slices.Contains(h.notifier.Kinds(), orchestrator.NoticeThinking) {
		t.Errorf("notices = %q, want a thinking notice", h.notifier.Kinds())
	}
}

func TestEscalation_IncompleteAnswerIsHeld(t *testing.T) {
	t.Parallel()

	r := &fakeResolver{fn: answer(intent.Intent{
		Type:             intent.TypeTimeout,
		Confidence:       cloud.Confidence,
		RequiresMoreInfo: true,
	})}
	h := newHarness(t, orchestrator.WithResolver(r))

	h.say("abacaxi")
	waitFor(t, "pending intent", func() bool { return h.orch.Pending() != nil })

	if p := h.orch.Pending(); p.Source != observe.SourceCloud {
		t.Errorf("Pending.Source = %q, want cloud", p.Source)
	}
	h.say("time b")
	wantCalls(t, h.scorer, "timeout B")
}

func TestEscalation_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(context.Context, string, cloud.Roster) (*intent.Intent, error)
	}{
		{"not recognized", fail(cloud.ErrNotRecognized)},
		{"invalid", fail(cloud.ErrInvalidResponse)},
		{"provider error", fail(errors.New("503"))},
		{"empty answer", emptyAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, orchestrator.WithResolver(&fakeResolver{fn: tt.fn}))

			h.say("abacaxi")
			waitFor(t, "not recognized notice", func() bool {
				_, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
				return ok
			})
			wantCalls(t, h.scorer)
			waitFor(t, "escalation to finish", func() bool {
				return h.orch.State() == orchestrator.StateListening
			})
		})
	}
}

func TestEscalation_NoticeCarriesTraceID(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	h := newHarness(t,
		orchestrator.WithResolver(&fakeResolver{fn: fail(cloud.ErrNotRecognized)}),
		orchestrator.WithSessionID("court-3"),
	)

	h.say("abacaxi")
	waitFor(t, "escalation span", func() bool { return len(exp.GetSpans()) == 1 })

	span := exp.GetSpans()[0]
	if span.Name != observe.SpanEscalation {
		t.Errorf("span name = %q", span.Name)
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value.AsString()
	}
	if attrs[observe.KeySessionID] != "court-3" || attrs[observe.KeyEscalationStatus] != "not_recognized" {
		t.Errorf("span attributes = %v", attrs)
	}

	n, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
	if !ok {
		t.Fatal("no not recognized notice")
	}
	if want := span.SpanContext.TraceID().String(); n.CorrelationID != want {
		t.Errorf("notice CorrelationID = %q, want trace %s", n.CorrelationID, want)
	}
}

func TestEscalation_Timeout(t *testing.T) {
	t.Parallel()

	r := &fakeResolver{fn: func(ctx context.Context, _ string, _ cloud.Roster) (*intent.Intent, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, orchestrator.WithResolver(r), orchestrator.WithCloudTimeout(20*time.Millisecond))

	h.say("abacaxi")
	waitFor(t, "not recognized notice", func() bool {
		_, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
		return ok
	})
}

func TestEscalation_SingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	r := &fakeResolver{fn: func(ctx context.Context, _ string, _ cloud.Roster) (*intent.Intent, error) {
		<-release
		return &intent.Intent{Type: intent.TypeSwap, Confidence: cloud.Confidence}, nil
	}}
	h := newHarness(t, orchestrator.WithResolver(r))

	h.say("abacaxi")
	waitFor(t, "escalation", func() bool { return h.orch.State() == orchestrator.StateAIEscalation })

	h.say("xyzzy")
	n, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
	if !ok || n.Transcript != "xyzzy" {
		t.Errorf("second escalation notice = %+v, %v, want not recognized", n, ok)
	}
	if got := len(r.Calls()); got != 1 {
		t.Errorf("resolver calls = %d, want 1", got)
	}

	// Local commands keep working while the escalation is in flight.
	h.say("ponto do Flamengo")
	wantCalls(t, h.scorer, "add A  ")

	close(release)
	waitFor(t, "cloud command", func() bool { return len(h.scorer.Calls()) == 2 })
	wantCalls(t, h.scorer, "add A  ", "swap")
}

func TestEscalation_LateAnswerNeverOverridesHeldState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		local  string
		answer intent.Intent
		check  func(t *testing.T, h *harness)
	}{
		{
			name:   "incomplete answer during conflict",
			local:  "ponto Carlos Lima time b",
			answer: intent.Intent{Type: intent.TypeTimeout, Confidence: cloud.Confidence, RequiresMoreInfo: true},
			check: func(t *testing.T, h *harness) {
				if h.orch.Pending() != nil {
					t.Error("pending intent held alongside the conflict")
				}
				if dc := h.orch.Conflict(); dc == nil || dc.Player.ID != "a2" {
					t.Errorf("Conflict = %+v, want the local conflict for a2", dc)
				}
				if s := h.orch.State(); s != orchestrator.StateDomainConflict {
					t.Errorf("State = %s, want domain_conflict", s)
				}
			},
		},
		{
			name:   "executable answer while a local intent is pending",
			local:  "tempo",
			answer: intent.Intent{Type: intent.TypePoint, Team: intent.TeamA, Confidence: cloud.Confidence},
			check: func(t *testing.T, h *harness) {
				p := h.orch.Pending()
				if p == nil || p.Intent.Type != intent.TypeTimeout || p.Source != observe.SourceLocal {
					t.Errorf("Pending = %+v, want the local timeout", p)
				}
				if h.orch.Conflict() != nil {
					t.Error("conflict raised by the cloud answer")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			release := make(chan struct{})
			r := &fakeResolver{fn: func(context.Context, string, cloud.Roster) (*intent.Intent, error) {
				<-release
				in := tt.answer
				return &in, nil
			}}
			h := newHarness(t, orchestrator.WithResolver(r))

			h.say("abacaxi")
			waitFor(t, "escalation", func() bool { return h.orch.State() == orchestrator.StateAIEscalation })
			h.say(tt.local)
			if h.orch.Pending() == nil && h.orch.Conflict() == nil {
				t.Fatalf("%q held nothing", tt.local)
			}

			close(release)
			waitFor(t, "refused cloud answer", func() bool {
				n, ok := h.notifier.Last(orchestrator.NoticeNotRecognized)
				return ok && n.Transcript == "abacaxi"
			})
			wantCalls(t, h.scorer)
			tt.check(t, h)
		})
	}
}

func TestEscalation_InterimNeverEscalates(t *testing.T) {
	t.Parallel()

	r := &fakeResolver{fn: fail(cloud.ErrNotRecognized)}
	h := newHarness(t, orchestrator.WithResolver(r))

	h.engine.EmitResult("abacaxi", false)
	time.Sleep(600 * time.Millisecond)
	if got := len(r.Calls()); got != 0 {
		t.Errorf("resolver calls = %d, want 0", got)
	}
}

func TestEscalation_CloseCancelsInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	r := &fakeResolver{fn: func(ctx context.Context, _ string, _ cloud.Roster) (*intent.Intent, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, orchestrator.WithResolver(r), orchestrator.WithCloudTimeout(time.Minute))

	h.say("abacaxi")
	<-started

	done := make(chan error, 1)
	go func() { done <- h.orch.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if _, ok := h.notifier.Last(orchestrator.NoticeNotRecognized); ok {
		t.Error("cancelled escalation reported as not recognized")
	}
}

func TestOrchestrator_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := newHarness(t, orchestrator.WithMetrics(m))
	h.say("ponto do Flamengo")
	h.say("ponto time a")
	h.say("timeout")

	if got := counterSum(t, reader, "courtside.command.executed", "source", observe.SourceLocal); got != 1 {
		t.Errorf("executed(local) = %d, want 1", got)
	}
	if got := counterSum(t, reader, "courtside.command.rejected", "reason", "duplicate"); got != 1 {
		t.Errorf("rejected(duplicate) = %d, want 1", got)
	}
	if got := counterSum(t, reader, "courtside.command.held", "kind", "confirm"); got != 1 {
		t.Errorf("held(confirm) = %d, want 1", got)
	}
}
