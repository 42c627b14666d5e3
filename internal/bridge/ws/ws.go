// Package ws serves the bridge protocol over WebSocket.
//
// Each accepted connection is one session. The client sends
// [bridge.Command] values as JSON text frames and receives [bridge.Message]
// values the same way. The session ends when either side closes the socket
// or the client sends a close command.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/courtside/internal/bridge"
)

const (
	defaultWriteTimeout = 5 * time.Second
	readLimit           = 1 << 16
)

// Option configures a [Handler].
type Option func(*Handler)

// WithOriginPatterns allows cross-origin connections from hosts matching the
// given patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithWriteTimeout bounds a single outbound frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler upgrades HTTP requests to bridge sessions.
type Handler struct {
	hub          *bridge.Hub
	origins      []string
	writeTimeout time.Duration
	log          *slog.Logger
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a [Handler] that opens its sessions on hub.
func NewHandler(hub *bridge.Hub, opts ...Option) *Handler {
	h := &Handler{
		hub:          hub,
		writeTimeout: defaultWriteTimeout,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "bridge.ws")
	return h
}

// ServeHTTP implements [http.Handler]. It blocks for the lifetime of the
// connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	s, err := h.hub.Open("", func(ctx context.Context, m bridge.Message) error {
		ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
		return wsjson.Write(ctx, conn, m)
	})
	if err != nil {
		h.log.Warn("open session", "err", err)
		conn.Close(websocket.StatusTryAgainLater, "service unavailable")
		return
	}
	log := h.log.With("session_id", s.ID())
	log.Debug("websocket connected", "remote", r.RemoteAddr)

	h.readLoop(r.Context(), conn, s, log)

	if err := h.hub.Remove(s.ID()); err != nil && !errors.Is(err, bridge.ErrSessionNotFound) {
		log.Warn("close session", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// readLoop feeds client commands to s until the connection ends.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, s *bridge.Session, log *slog.Logger) {
	for {
		var cmd bridge.Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("websocket closed by client")
			default:
				log.Debug("websocket read", "err", err)
			}
			return
		}
		err := s.Handle(ctx, cmd)
		switch {
		case errors.Is(err, bridge.ErrCloseRequested):
			return
		case err != nil:
			log.Debug("command failed", "type", cmd.Type, "err", err)
		}
	}
}
