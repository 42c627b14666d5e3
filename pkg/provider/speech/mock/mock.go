// Package mock provides a test double for the speech.Engine interface.
//
// The mock records Start and Stop calls and exposes Emit helpers that invoke
// the registered callbacks synchronously, the way a real engine would from
// its own goroutine.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/courtside/pkg/provider/speech"
)

// Engine is a mock implementation of speech.Engine.
type Engine struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// StartCalls records the language of every Start call.
	StartCalls []string

	// StopCalls counts Stop calls.
	StopCalls int

	listening bool
	cb        speech.Callbacks
}

// SetCallbacks implements speech.Engine.
func (e *Engine) SetCallbacks(cb speech.Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cb = cb
}

// Start implements speech.Engine. It reports the status change through
// OnListeningStatusChanged unless StartErr is set.
func (e *Engine) Start(_ context.Context, language string) error {
	e.mu.Lock()
	e.StartCalls = append(e.StartCalls, language)
	if e.StartErr != nil {
		err := e.StartErr
		e.mu.Unlock()
		return err
	}
	wasListening := e.listening
	e.listening = true
	cb := e.cb.OnListeningStatusChanged
	e.mu.Unlock()

	if !wasListening && cb != nil {
		cb(true)
	}
	return nil
}

// Stop implements speech.Engine.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.StopCalls++
	if e.StopErr != nil {
		err := e.StopErr
		e.mu.Unlock()
		return err
	}
	wasListening := e.listening
	e.listening = false
	cb := e.cb.OnListeningStatusChanged
	e.mu.Unlock()

	if wasListening && cb != nil {
		cb(false)
	}
	return nil
}

// Listening reports whether the mock is between Start and Stop.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// EmitResult invokes OnResult.
func (e *Engine) EmitResult(text string, isFinal bool) {
	e.mu.Lock()
	cb := e.cb.OnResult
	e.mu.Unlock()
	if cb != nil {
		cb(speech.Result{Text: text, IsFinal: isFinal})
	}
}

// EmitInterimFeedback invokes OnInterimFeedback.
func (e *Engine) EmitInterimFeedback(text string) {
	e.mu.Lock()
	cb := e.cb.OnInterimFeedback
	e.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// EmitError invokes OnError.
func (e *Engine) EmitError(err error) {
	e.mu.Lock()
	cb := e.cb.OnError
	e.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// EmitStatus flips the listening flag and invokes OnListeningStatusChanged,
// as an engine does when it stops on its own.
func (e *Engine) EmitStatus(listening bool) {
	e.mu.Lock()
	e.listening = listening
	cb := e.cb.OnListeningStatusChanged
	e.mu.Unlock()
	if cb != nil {
		cb(listening)
	}
}

var _ speech.Engine = (*Engine)(nil)
