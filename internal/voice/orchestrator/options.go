package orchestrator

import (
	"log/slog"
	"time"

	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/buffer"
	"github.com/MrWong99/courtside/internal/voice/cloud"
	"github.com/MrWong99/courtside/internal/voice/dedup"
	"github.com/MrWong99/courtside/internal/voice/intent"
)

const (
	defaultExecuteThreshold = 0.85
	defaultConfirmThreshold = 0.60
	defaultHistorySize      = 20
	defaultCloudTimeout     = 8 * time.Second
)

type config struct {
	sessionID        string
	language         intent.Language
	executeThreshold float64
	confirmThreshold float64
	historySize      int
	pendingTimeout   time.Duration
	cloudTimeout     time.Duration
	resolver         cloud.Resolver
	notifier         Notifier
	parser           *intent.Parser
	dedup            *dedup.Deduplicator
	bufferOpts       []buffer.Option
	metrics          *observe.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

func defaultConfig() config {
	return config{
		language:         intent.Portuguese,
		executeThreshold: defaultExecuteThreshold,
		confirmThreshold: defaultConfirmThreshold,
		historySize:      defaultHistorySize,
		cloudTimeout:     defaultCloudTimeout,
		logger:           slog.Default(),
		now:              time.Now,
	}
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*config)

// WithLanguage sets the parsing language and the language requested from the
// speech engine. Default: Portuguese.
func WithLanguage(lang intent.Language) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithSessionID names the session on trace spans.
func WithSessionID(id string) Option {
	return func(c *config) {
		c.sessionID = id
	}
}

// WithThresholds sets the confidence bands. Intents at or above execute run
// immediately; intents at or above confirm are held. Defaults: 0.85, 0.60.
func WithThresholds(execute, confirm float64) Option {
	return func(c *config) {
		c.executeThreshold = execute
		c.confirmThreshold = confirm
	}
}

// WithHistorySize caps the executed-command history. Default: 20.
func WithHistorySize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.historySize = n
		}
	}
}

// WithPendingTimeout sets how long a pending intent or domain conflict is
// held. Zero, the default, holds it until the caller acts.
func WithPendingTimeout(d time.Duration) Option {
	return func(c *config) {
		c.pendingTimeout = d
	}
}

// WithResolver enables cloud escalation through r. A nil resolver disables
// it, which is the default.
func WithResolver(r cloud.Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithCloudTimeout bounds one cloud escalation. Default: 8s.
func WithCloudTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.cloudTimeout = d
		}
	}
}

// WithNotifier sets the feedback receiver. Without one, notices are dropped.
func WithNotifier(n Notifier) Option {
	return func(c *config) {
		c.notifier = n
	}
}

// WithParser replaces the default [intent.Parser].
func WithParser(p *intent.Parser) Option {
	return func(c *config) {
		c.parser = p
	}
}

// WithDeduplicator replaces the session deduplicator.
func WithDeduplicator(d *dedup.Deduplicator) Option {
	return func(c *config) {
		c.dedup = d
	}
}

// WithBufferOptions configures the transcript buffer.
func WithBufferOptions(opts ...buffer.Option) Option {
	return func(c *config) {
		c.bufferOpts = append(c.bufferOpts, opts...)
	}
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now for history timestamps and pending expiry.
// The default deduplicator uses the same clock.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
