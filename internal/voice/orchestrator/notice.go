package orchestrator

import "github.com/MrWong99/courtside/internal/voice/intent"

// NoticeKind classifies user feedback.
type NoticeKind string

const (
	NoticeInterim       NoticeKind = "interim"
	NoticeThinking      NoticeKind = "thinking"
	NoticeConfirm       NoticeKind = "confirm"
	NoticeConflict      NoticeKind = "conflict"
	NoticeAmbiguous     NoticeKind = "ambiguous"
	NoticeNotRecognized NoticeKind = "not_recognized"
	NoticeExecuted      NoticeKind = "executed"
	NoticeError         NoticeKind = "error"
)

// Notice is one piece of feedback for the user. Clients localize by Kind;
// Message is an English fallback.
type Notice struct {
	Kind       NoticeKind             `json:"kind"`
	Message    string                 `json:"message,omitempty"`
	Transcript string                 `json:"transcript,omitempty"`
	Intent     *intent.Intent         `json:"intent,omitempty"`
	Candidates []string               `json:"candidates,omitempty"`
	Conflict   *intent.DomainConflict `json:"conflict,omitempty"`

	// CorrelationID is the trace ID of the cloud escalation behind the
	// notice, if any.
	CorrelationID string `json:"correlationId,omitempty"`
}

// Notifier shows and hides feedback. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
	Hide()
}

func (o *Orchestrator) notify(n Notice) {
	if o.cfg.notifier != nil {
		o.cfg.notifier.Notify(n)
	}
}

func (o *Orchestrator) hide() {
	if o.cfg.notifier != nil {
		o.cfg.notifier.Hide()
	}
}
