package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// Reload is one accepted revision of the config file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls the config file and hands every valid revision that changes
// something Courtside acts on to a callback. Invalid revisions are logged
// once and skipped; the last valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    revision

	cancel context.CancelFunc
	done   chan struct{}
}

// revision identifies one state of the file on disk.
type revision struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload events. Default: [slog.Default].
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path and polls it until ctx is done or [Watcher.Stop] is
// called. onReload may be nil. It runs on the polling goroutine and never
// runs after Stop returns.
func NewWatcher(ctx context.Context, path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		onReload: onReload,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "config", "path", path)

	rev, data, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, rev

	ctx, w.cancel = context.WithCancel(ctx)
	go w.poll(ctx)
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Voice returns the voice tuning of the most recently accepted config. New
// sessions read it when they open.
func (w *Watcher) Voice() VoiceConfig {
	return w.Current().Voice
}

// Stop ends polling and waits for an in-flight reload to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its modification time or size moved and its
// content hash differs from the last revision seen.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config file unreadable", "err", err)
		return
	}
	w.mu.Lock()
	seen := w.seen
	w.mu.Unlock()
	if info.ModTime().Equal(seen.mtime) && info.Size() == seen.size {
		return
	}

	rev, data, err := w.read()
	if err != nil {
		w.log.Warn("config file unreadable", "err", err)
		return
	}
	w.mu.Lock()
	w.seen = rev
	old := w.current
	w.mu.Unlock()
	if rev.sum == seen.sum {
		return
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.log.Warn("config revision rejected, keeping the previous one", "err", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	d := Diff(old, cfg)
	if d.Empty() {
		w.log.Debug("config rewritten without effective changes")
		return
	}
	w.log.Info("config reloaded",
		"log_level_changed", d.LogLevelChanged,
		"voice_fields", d.VoiceFields,
		"restart_required", d.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(Reload{Old: old, New: cfg, Diff: d})
	}
}

// read returns the file content and the revision it belongs to.
func (w *Watcher) read() (revision, []byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return revision{}, nil, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return revision{}, nil, err
	}
	return revision{mtime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, data, nil
}
