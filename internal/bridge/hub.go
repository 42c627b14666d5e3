package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
)

var (
	// ErrSessionExists is returned by [Hub.Open] for a duplicate session ID.
	ErrSessionExists = errors.New("bridge: session already exists")

	// ErrSessionNotFound is returned by [Hub.Remove] for an unknown session ID.
	ErrSessionNotFound = errors.New("bridge: session not found")

	// ErrHubClosed is returned by [Hub.Open] after [Hub.Close].
	ErrHubClosed = errors.New("bridge: hub closed")
)

const (
	// defaultQueueSize is the per-session outbound buffer.
	defaultQueueSize = 64

	// defaultEnqueueTimeout bounds how long a scorer action waits for room
	// in a full outbound queue.
	defaultEnqueueTimeout = 5 * time.Second
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithSessionOptions sets the function that supplies orchestrator options for
// each new session. It is called on every [Hub.Open], so a reloaded config
// takes effect for sessions opened afterwards.
func WithSessionOptions(fn func() []orchestrator.Option) HubOption {
	return func(h *Hub) { h.sessionOpts = fn }
}

// WithQueueSize sets the per-session outbound buffer. Values < 1 are ignored.
func WithQueueSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queue = n
		}
	}
}

// WithEnqueueTimeout bounds how long messages that must not be dropped wait
// for room in a full session queue. Values <= 0 are ignored.
func WithEnqueueTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.enqueueTimeout = d
		}
	}
}

// WithMetrics sets the metrics used for the active-session gauge.
func WithMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger sets the logger. Sessions log through a child of it.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// Hub owns the live sessions of all transports. It is safe for concurrent
// use.
type Hub struct {
	sessionOpts    func() []orchestrator.Option
	queue          int
	enqueueTimeout time.Duration
	metrics        *observe.Metrics
	log            *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		queue:          defaultQueueSize,
		enqueueTimeout: defaultEnqueueTimeout,
		log:            slog.Default(),
		sessions:       make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	h.log = h.log.With("component", "bridge")
	return h
}

// Open creates a session that writes through send. An empty id is replaced
// by a random UUID. The client receives a session message carrying the ID.
func (h *Hub) Open(id string, send SendFunc) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	var opts []orchestrator.Option
	if h.sessionOpts != nil {
		opts = h.sessionOpts()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if _, ok := h.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, id)
	}
	s := newSession(id, send, h.queue, h.enqueueTimeout, h.log, opts)
	h.sessions[id] = s
	h.metrics.ActiveSessions.Add(context.Background(), 1)
	s.enqueue(Message{Type: MsgSession})
	h.log.Info("session opened", "session_id", id)
	return s, nil
}

// Get returns the session with the given ID.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Remove closes the session and forgets it.
func (h *Hub) Remove(id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return h.closeSession(s)
}

func (h *Hub) closeSession(s *Session) error {
	h.metrics.ActiveSessions.Add(context.Background(), -1)
	h.log.Info("session closed", "session_id", s.ID())
	if err := s.Close(); err != nil {
		return fmt.Errorf("bridge: close session %q: %w", s.ID(), err)
	}
	return nil
}

// Close closes every session and rejects further [Hub.Open] calls.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := h.closeSession(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
