// Package buffer coalesces streaming transcript fragments before they reach
// the intent parser.
//
// Interim results are debounced. Each new fragment re-arms a single timer,
// and only the latest text is flushed once the speaker pauses. Final results
// flush immediately and cancel any pending timer. A flush whose normalized
// text equals the previous flush within the repeat cooldown is dropped,
// which absorbs speech engines that emit the same utterance as both an
// interim and a final result.
package buffer

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultDebounce = 400 * time.Millisecond
	defaultCooldown = 800 * time.Millisecond
)

// FlushFunc receives coalesced transcript text. Calls are serialized.
type FlushFunc func(text string, isFinal bool)

// Option is a functional option for configuring a [Buffer].
type Option func(*Buffer)

// WithDebounce sets the quiet period after the last interim fragment.
// Default: 400ms.
func WithDebounce(d time.Duration) Option {
	return func(b *Buffer) {
		b.debounce = d
	}
}

// WithCooldown sets how long an identical flush is suppressed. Default: 800ms.
func WithCooldown(d time.Duration) Option {
	return func(b *Buffer) {
		b.cooldown = d
	}
}

// WithClock replaces time.Now for cooldown bookkeeping. Debounce timers
// always use the runtime clock.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		b.now = now
	}
}

// Buffer is safe for concurrent use. Only one debounce timer is live at a
// time.
type Buffer struct {
	debounce time.Duration
	cooldown time.Duration
	now      func() time.Time
	onFlush  FlushFunc

	mu      sync.Mutex
	pending string
	timer   *time.Timer
	// gen invalidates timers that fired after being replaced or cancelled.
	gen      uint64
	lastText string
	lastAt   time.Time

	// deliverMu is held from the cooldown check through onFlush, so flushes
	// reach onFlush in the order they passed the check. It is taken before
	// mu, never while holding it.
	deliverMu sync.Mutex
}

// New returns a [Buffer] that hands coalesced text to onFlush.
func New(onFlush FlushFunc, opts ...Option) *Buffer {
	b := &Buffer{
		debounce: defaultDebounce,
		cooldown: defaultCooldown,
		now:      time.Now,
		onFlush:  onFlush,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Push accepts transcript text from the speech engine. Interim text
// replaces any earlier interim text; speech engines resend the whole
// hypothesis with every fragment.
func (b *Buffer) Push(text string, isFinal bool) {
	text = strings.TrimSpace(text)

	b.mu.Lock()
	b.stopTimerLocked()
	if isFinal {
		b.pending = ""
		b.mu.Unlock()
		if text != "" {
			b.deliverMu.Lock()
			defer b.deliverMu.Unlock()
			b.deliverLocked(text, true)
		}
		return
	}
	if text == "" {
		b.mu.Unlock()
		return
	}
	b.pending = text
	gen := b.gen
	b.timer = time.AfterFunc(b.debounce, func() { b.fire(gen) })
	b.mu.Unlock()
}

// Cancel drops buffered text and forgets the last flushed text. Call it when
// listening stops.
func (b *Buffer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopTimerLocked()
	b.pending = ""
	b.lastText = ""
	b.lastAt = time.Time{}
}

// ResetCooldown forgets the last flushed text so an identical utterance is
// accepted again. Buffered text is kept.
func (b *Buffer) ResetCooldown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastText = ""
	b.lastAt = time.Time{}
}

// stopTimerLocked must be called with b.mu held.
func (b *Buffer) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

// fire flushes the pending interim text unless a newer push or a final
// result superseded the timer, including one delivered while fire waited.
func (b *Buffer) fire(gen uint64) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if gen != b.gen || b.pending == "" {
		b.mu.Unlock()
		return
	}
	text := b.pending
	b.pending = ""
	b.timer = nil
	b.mu.Unlock()

	b.deliverLocked(text, false)
}

// deliverLocked applies the repeat cooldown and hands text to onFlush. It
// must be called with b.deliverMu held.
func (b *Buffer) deliverLocked(text string, isFinal bool) {
	key := normalizeKey(text)
	if key == "" {
		return
	}

	b.mu.Lock()
	now := b.now()
	if key == b.lastText && now.Sub(b.lastAt) < b.cooldown {
		b.mu.Unlock()
		return
	}
	b.lastText = key
	b.lastAt = now
	b.mu.Unlock()

	b.onFlush(text, isFinal)
}

func normalizeKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
