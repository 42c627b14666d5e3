// Package dedup suppresses replayed and overlapping scoring commands.
//
// Speech engines often deliver one spoken command several times: as an
// interim result, again as a final result, and sometimes once more after a
// session restart. A [Deduplicator] rejects an intent when an identical one
// was registered within the cooldown window. It also applies a per-team
// lockout to positive points, so two differently worded fragments about the
// same rally cannot award two points.
//
// A Deduplicator belongs to one listening session. Call [Deduplicator.Reset]
// when a new session starts.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/courtside/internal/voice/intent"
)

const (
	defaultCooldown    = 1500 * time.Millisecond
	defaultTeamLockout = 1500 * time.Millisecond
	defaultHistorySize = 5
)

// Rejection reasons reported in [Decision.Reason].
const (
	ReasonDuplicate   = "duplicate"
	ReasonTeamLockout = "team_lockout"
)

// Option is a functional option for configuring a [Deduplicator].
type Option func(*Deduplicator)

// WithCooldown sets how long an identical intent stays blocked. Records
// older than twice this window are pruned. Default: 1.5s.
func WithCooldown(d time.Duration) Option {
	return func(dd *Deduplicator) {
		dd.cooldown = d
	}
}

// WithTeamLockout sets how long a positive point locks further positive
// points for the same team. Default: 1.5s.
func WithTeamLockout(d time.Duration) Option {
	return func(dd *Deduplicator) {
		dd.teamLockout = d
	}
}

// WithHistorySize caps the number of remembered intents. Default: 5.
func WithHistorySize(n int) Option {
	return func(dd *Deduplicator) {
		dd.historySize = n
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(dd *Deduplicator) {
		dd.now = now
	}
}

// Decision is the outcome of [Deduplicator.CanExecute].
type Decision struct {
	Allowed bool
	// Reason is empty when Allowed is true.
	Reason string
}

// Snapshot is diagnostic state for logs and debug views.
type Snapshot struct {
	RecentCount int
	LockedTeams []intent.Team
}

type record struct {
	hash string
	at   time.Time
}

// Deduplicator is safe for concurrent use.
type Deduplicator struct {
	cooldown    time.Duration
	teamLockout time.Duration
	historySize int
	now         func() time.Time

	mu sync.Mutex
	// history is most recent first.
	history   []record
	lastPoint map[intent.Team]time.Time
}

// New returns a [Deduplicator] configured with opts.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		cooldown:    defaultCooldown,
		teamLockout: defaultTeamLockout,
		historySize: defaultHistorySize,
		now:         time.Now,
		lastPoint:   make(map[intent.Team]time.Time),
	}
	for _, o := range opts {
		o(d)
	}
	if d.historySize < 1 {
		d.historySize = 1
	}
	return d
}

// CanExecute reports whether in may run now. Unknown, undo and swap intents
// are always allowed.
func (d *Deduplicator) CanExecute(in intent.Intent) Decision {
	if alwaysAllowed(in.Type) {
		return Decision{Allowed: true}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	h := hash(in)
	for _, r := range d.history {
		if r.hash == h && now.Sub(r.at) < d.cooldown {
			return Decision{Reason: ReasonDuplicate}
		}
	}

	if isPositivePoint(in) {
		if at, ok := d.lastPoint[in.Team]; ok && now.Sub(at) < d.teamLockout {
			return Decision{Reason: ReasonTeamLockout}
		}
	}
	return Decision{Allowed: true}
}

// Register records in as executed. Unknown intents are ignored.
func (d *Deduplicator) Register(in intent.Intent) {
	if in.Type == intent.TypeUnknown {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.history = append([]record{{hash: hash(in), at: now}}, d.history...)
	if len(d.history) > d.historySize {
		d.history = d.history[:d.historySize]
	}
	if isPositivePoint(in) {
		d.lastPoint[in.Team] = now
	}
	d.prune(now)
}

// Reset forgets all history and lockouts.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history = nil
	clear(d.lastPoint)
}

// Snapshot returns the current diagnostic state.
func (d *Deduplicator) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	s := Snapshot{RecentCount: len(d.history)}
	for _, t := range []intent.Team{intent.TeamA, intent.TeamB} {
		if at, ok := d.lastPoint[t]; ok && now.Sub(at) < d.teamLockout {
			s.LockedTeams = append(s.LockedTeams, t)
		}
	}
	return s
}

// prune drops records older than twice the cooldown. Must be called with
// d.mu held.
func (d *Deduplicator) prune(now time.Time) {
	horizon := 2 * d.cooldown
	kept := d.history[:0]
	for _, r := range d.history {
		if now.Sub(r.at) <= horizon {
			kept = append(kept, r)
		}
	}
	d.history = kept
	for t, at := range d.lastPoint {
		if now.Sub(at) > max(horizon, d.teamLockout) {
			delete(d.lastPoint, t)
		}
	}
}

func alwaysAllowed(t intent.CommandType) bool {
	return t == intent.TypeUnknown || t == intent.TypeUndo || t == intent.TypeSwap
}

func isPositivePoint(in intent.Intent) bool {
	return in.Type == intent.TypePoint && !in.IsNegative && in.Team != intent.TeamNone
}

func hash(in intent.Intent) string {
	sign := "pos"
	if in.IsNegative {
		sign = "neg"
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", in.Type, in.Team, in.Skill, in.PlayerID(), sign)
}
