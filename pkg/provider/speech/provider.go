// Package speech defines the Engine interface for the speech recognizer that
// feeds transcripts to the voice-command pipeline.
//
// The engine itself is external: an on-device recognizer, a browser Web
// Speech session relayed over a socket, or a message bus subscription. The
// pipeline only needs to start and stop it and to receive its callbacks.
// Permission handling, device restarts and backoff belong to the engine.
//
// Callbacks may be invoked from any goroutine. Implementations must be safe
// for concurrent use.
package speech

import "context"

// Result is one recognition hypothesis.
type Result struct {
	// Text is the full hypothesis for the current utterance. Engines resend
	// the whole text with every interim update.
	Text string

	// IsFinal is true once the engine has committed to Text.
	IsFinal bool
}

// Callbacks receive engine events. Nil fields are ignored.
type Callbacks struct {
	// OnResult delivers interim and final hypotheses.
	OnResult func(Result)

	// OnInterimFeedback delivers text suitable for a live caption. It may
	// fire more often than OnResult.
	OnInterimFeedback func(text string)

	// OnError reports a recognition failure. The engine decides whether it
	// keeps running.
	OnError func(err error)

	// OnListeningStatusChanged reports when the engine starts or stops
	// capturing audio, including stops the caller did not request.
	OnListeningStatusChanged func(listening bool)
}

// Engine is the abstraction over any speech recognizer.
type Engine interface {
	// SetCallbacks replaces the registered callbacks.
	SetCallbacks(cb Callbacks)

	// Start begins recognition in the given BCP-47 language ("pt-BR",
	// "en-US", "es-ES"). Calling Start while already listening is a no-op.
	Start(ctx context.Context, language string) error

	// Stop ends recognition. Calling Stop while idle is a no-op.
	Stop() error
}
