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

// Watcher keeps the config file and the running server in sync. It polls
// the file and also reloads on demand through [Watcher.Reload], which the
// server triggers on SIGHUP. Only valid configs whose content changed reach
// the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	kick     chan struct{}

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path once and returns a watcher for it. Nothing is
// polled until [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.mtime, w.sum = snap.cfg, snap.mtime, snap.sum
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload asks [Watcher.Run] to re-read the file even if its modification
// time did not move. It never blocks; repeated calls before the reload
// runs are merged.
func (w *Watcher) Reload() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run polls the file until ctx is done. It always returns nil so it can run
// in an errgroup next to the server. Callbacks run on this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(false)
		case <-w.kick:
			w.poll(true)
		}
	}
}

// poll reloads the file when its mtime moved, or always when forced. An
// invalid file keeps the previous config.
func (w *Watcher) poll(force bool) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
			return
		}
		w.mu.Lock()
		unchanged := info.ModTime().Equal(w.mtime)
		w.mu.Unlock()
		if unchanged {
			return
		}
	}

	snap, err := w.read()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.mtime = snap.mtime
	if snap.sum == w.sum {
		w.mu.Unlock()
		slog.Debug("config watcher: content unchanged", "path", w.path, "forced", force)
		return
	}
	old := w.current
	w.current, w.sum = snap.cfg, snap.sum
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path, "forced", force)
	if w.onChange != nil {
		w.onChange(old, snap.cfg)
	}
}

type snapshot struct {
	cfg   *Config
	mtime time.Time
	sum   [sha256.Size]byte
}

// read loads and validates the file and fingerprints its content.
func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
