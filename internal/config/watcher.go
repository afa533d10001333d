package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileState is what the watcher remembers about the last accepted file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher hot-reloads the daemon config. The daemon keeps running through
// an edit; a reload that fails validation is logged and discarded so a
// half-saved file never takes down a dictation in progress.
//
// Detection is polling on mtime with a content hash behind it. The config
// lives in the user's home directory where inotify semantics vary across
// editors (atomic rename, truncate and rewrite), and a poll every few
// seconds is indistinguishable from instant for a human editing YAML.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	last     fileState
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it for changes.
// The initial load must succeed; after that, [Watcher.Current] always
// returns the last config that passed validation.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, state, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.last = state

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep is one poll: cheap mtime comparison first, hash and reload only
// when the file actually moved.
func (w *Watcher) sweep() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, state, err := w.read()
	if err != nil {
		slog.Warn("config watcher: reload rejected, keeping previous config",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if state.sum == w.last.sum {
		// Touched but identical content. Remember the mtime so the next
		// sweep skips the hash.
		w.last.mtime = state.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.last = state
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read parses and validates the file, returning the config with the file
// state that identifies this revision.
func (w *Watcher) read() (*Config, fileState, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}

	return cfg, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
