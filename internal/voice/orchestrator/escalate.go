package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/cloud"
	"github.com/MrWong99/courtside/internal/voice/intent"
)

// Escalation outcomes reported on [observe.Metrics.CloudEscalations].
const (
	escalationOK            = "ok"
	escalationBusy          = "busy"
	escalationNotRecognized = "not_recognized"
	escalationInvalid       = "invalid"
	escalationError         = "error"
	escalationCancelled     = "cancelled"
)

// escalate hands text to the cloud resolver on a new goroutine. A second
// escalation while one is in flight is rejected.
func (o *Orchestrator) escalate(text string, mc intent.MatchContext) {
	if !o.escalation.TryAcquire(1) {
		o.log.Warn("cloud escalation rejected", "err", ErrEscalationInFlight, "text", text)
		o.metrics().RecordEscalation(o.ctx, escalationBusy)
		o.notify(Notice{Kind: NoticeNotRecognized, Message: "Command not recognized", Transcript: text})
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.escalation.Release(1)
		return
	}
	o.escalating = true
	o.wg.Add(1)
	o.mu.Unlock()

	o.notify(Notice{Kind: NoticeThinking, Message: "Interpreting…", Transcript: text})
	go func() {
		defer o.wg.Done()
		defer o.escalation.Release(1)
		o.runEscalation(text, mc)
	}()
}

func (o *Orchestrator) runEscalation(text string, mc intent.MatchContext) {
	ctx, cancel := context.WithTimeout(o.ctx, o.cfg.cloudTimeout)
	defer cancel()
	ctx, span := observe.StartEscalation(ctx, o.cfg.sessionID, string(o.cfg.language))

	start := time.Now()
	in, err := o.cfg.resolver.ParseCommand(ctx, text, cloud.RosterFrom(mc))
	elapsed := time.Since(start)
	if err == nil && in == nil {
		err = cloud.ErrNotRecognized
	}

	o.mu.Lock()
	o.escalating = false
	o.mu.Unlock()

	status := escalationStatus(o.ctx, err)
	var resolved string
	if in != nil {
		resolved = string(in.Type)
	}
	var failure error
	if status == escalationError {
		failure = err
	}
	defer observe.EndEscalation(span, status, resolved, failure)

	o.metrics().CloudDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("status", status)),
	)
	o.metrics().RecordEscalation(ctx, status)

	log := observe.WithTrace(ctx, o.log)
	switch status {
	case escalationOK:
		log.Debug("cloud escalation resolved", "type", in.Type, "team", in.Team, "duration", elapsed)
		o.hide()
		in.RawText = text
		o.mu.Lock()
		held := o.heldLocked()
		o.mu.Unlock()
		if held {
			// A confirmation or conflict raised while the call was in
			// flight takes precedence over the late answer.
			o.refuseHeld(ctx, *in)
			return
		}
		o.route(ctx, *in, true, observe.SourceCloud)
		return
	case escalationCancelled:
		return
	case escalationNotRecognized, escalationInvalid:
		log.Info("cloud escalation not recognized", "text", text, "err", err)
	default:
		log.Warn("cloud escalation failed", "text", text, "err", err)
	}
	o.hide()
	o.notify(Notice{
		Kind:          NoticeNotRecognized,
		Message:       "Command not recognized",
		Transcript:    text,
		CorrelationID: observe.CorrelationID(ctx),
	})
}

// escalationStatus classifies a resolver result. parent is the session
// context; its cancellation means the orchestrator was closed.
func escalationStatus(parent context.Context, err error) string {
	switch {
	case err == nil:
		return escalationOK
	case parent.Err() != nil:
		return escalationCancelled
	case errors.Is(err, cloud.ErrNotRecognized):
		return escalationNotRecognized
	case errors.Is(err, cloud.ErrInvalidResponse):
		return escalationInvalid
	}
	return escalationError
}
