// Package natsbus serves the bridge protocol over NATS.
//
// Clients publish [bridge.Command] JSON on <prefix>.command.<session> and
// subscribe to <prefix>.event.<session> for [bridge.Message] JSON. A session
// is opened on the first command for an unknown session ID and lives until
// the client sends a close command or the bridge shuts down.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/courtside/internal/bridge"
)

const defaultConnectTimeout = 5 * time.Second

// Option configures a [Bridge].
type Option func(*options)

type options struct {
	prefix         string
	name           string
	connectTimeout time.Duration
	log            *slog.Logger
}

// WithSubjectPrefix sets the subject prefix. Default: "courtside".
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithName sets the client connection name used by [Connect].
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithConnectTimeout bounds the initial dial in [Connect].
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Bridge routes NATS messages to hub sessions.
type Bridge struct {
	conn  *nats.Conn
	owned bool
	hub   *bridge.Hub
	sub   *nats.Subscription
	opts  options
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]struct{}
	closed   bool
}

// errBridgeClosed is returned by open after [Bridge.Close].
var errBridgeClosed = errors.New("natsbus: bridge closed")

// Connect dials url and starts a [Bridge] on the new connection. The
// connection is closed by [Bridge.Close].
func Connect(url string, hub *bridge.Hub, opts ...Option) (*Bridge, error) {
	o := buildOptions(opts)
	conn, err := nats.Connect(url,
		nats.Name(o.name),
		nats.Timeout(o.connectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect %q: %w", url, err)
	}
	b, err := start(conn, hub, o)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// New starts a [Bridge] on an existing connection. The caller keeps
// ownership of conn.
func New(conn *nats.Conn, hub *bridge.Hub, opts ...Option) (*Bridge, error) {
	return start(conn, hub, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{
		prefix:         "courtside",
		name:           "courtside",
		connectTimeout: defaultConnectTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func start(conn *nats.Conn, hub *bridge.Hub, o options) (*Bridge, error) {
	b := &Bridge{
		conn:     conn,
		hub:      hub,
		opts:     o,
		log:      o.log.With("component", "bridge.nats"),
		sessions: make(map[string]struct{}),
	}
	sub, err := conn.Subscribe(b.commandSubject("*"), b.handleCommand)
	if err != nil {
		return nil, fmt.Errorf("natsbus: subscribe: %w", err)
	}
	b.sub = sub
	b.log.Info("NATS bridge listening", "subject", sub.Subject)
	return b, nil
}

func (b *Bridge) commandSubject(id string) string {
	return b.opts.prefix + ".command." + id
}

func (b *Bridge) eventSubject(id string) string {
	return b.opts.prefix + ".event." + id
}

// Connected reports whether the NATS connection is up.
func (b *Bridge) Connected() bool {
	return b.conn.Status() == nats.CONNECTED
}

func (b *Bridge) handleCommand(msg *nats.Msg) {
	id := strings.TrimPrefix(msg.Subject, b.commandSubject(""))
	log := b.log.With("session_id", id)

	var cmd bridge.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		log.Warn("decode command", "err", err)
		return
	}

	s, ok := b.hub.Get(id)
	if !ok {
		if cmd.Type == bridge.CmdClose {
			return
		}
		var err error
		if s, err = b.open(id); err != nil {
			log.Warn("open session", "err", err)
			return
		}
	}

	err := s.Handle(context.Background(), cmd)
	switch {
	case errors.Is(err, bridge.ErrCloseRequested):
		b.remove(id)
	case err != nil:
		log.Debug("command failed", "type", cmd.Type, "err", err)
	}
}

func (b *Bridge) open(id string) (*bridge.Session, error) {
	subject := b.eventSubject(id)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errBridgeClosed
	}
	s, err := b.hub.Open(id, func(_ context.Context, m bridge.Message) error {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("natsbus: encode message: %w", err)
		}
		return b.conn.Publish(subject, data)
	})
	if err != nil {
		return nil, err
	}
	b.sessions[id] = struct{}{}
	return s, nil
}

func (b *Bridge) remove(id string) {
	b.mu.Lock()
	delete(b.sessions, id)
	b.mu.Unlock()
	if err := b.hub.Remove(id); err != nil && !errors.Is(err, bridge.ErrSessionNotFound) {
		b.log.Warn("close session", "session_id", id, "err", err)
	}
}

// Close stops receiving commands and closes the sessions this bridge opened.
// Queued events are flushed before an owned connection is closed. Close is
// idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.sessions = make(map[string]struct{})
	b.mu.Unlock()

	var errs []error
	if err := b.sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, fmt.Errorf("natsbus: drain subscription: %w", err))
	}
	for _, id := range ids {
		if err := b.hub.Remove(id); err != nil && !errors.Is(err, bridge.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	if b.owned {
		if err := b.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, fmt.Errorf("natsbus: drain connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
