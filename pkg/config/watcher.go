// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Watcher polls the config file and its profile overlay and reloads the
// configuration when either changes. A reload that fails to load or
// validate keeps the previous configuration.
type Watcher struct {
	opts     Options
	paths    []string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	current   *Config
	stamps    map[string]fileStamp
	listeners []func(old, next *Config)

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// fileStamp identifies one version of a file on disk. A missing file has
// the zero stamp.
type fileStamp struct {
	modTime time.Time
	size    int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload events.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads opts once and prepares to watch opts.Path and the
// overlay for opts.Profile, even if the overlay does not exist yet. The
// --set overrides in opts are applied again on every reload.
func NewWatcher(opts Options, wopts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		opts:     opts,
		interval: time.Second,
		logger:   slog.Default(),
		stamps:   make(map[string]fileStamp),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range wopts {
		opt(w)
	}
	if opts.Path != "" {
		w.paths = append(w.paths, opts.Path)
		if overlay := overlayPath(opts.Path, opts.Profile); overlay != "" {
			w.paths = append(w.paths, overlay)
		}
	}
	for _, path := range w.paths {
		w.stamps[path] = stampOf(path)
	}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current = cfg
	return w, nil
}

// OnChange registers fn to run after every successful reload with the
// previous and the new configuration.
func (w *Watcher) OnChange(fn func(old, next *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling until ctx is done or Stop is called. Later calls
// are no-ops.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.mu.Lock()
		w.started = true
		w.mu.Unlock()
		go w.poll(ctx)
	})
}

// Stop ends polling and waits for the loop to exit. It is safe to call
// more than once and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if started {
		<-w.done
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if w.changed() {
				w.reload()
			}
		}
	}
}

func (w *Watcher) changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, path := range w.paths {
		stamp := stampOf(path)
		if stamp != w.stamps[path] {
			w.stamps[path] = stamp
			changed = true
		}
	}
	return changed
}

func (w *Watcher) reload() {
	next, err := w.load()
	if err != nil {
		w.logger.Error("config.reload.failed",
			slog.Any("paths", w.paths),
			slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = next
	listeners := append([]func(old, next *Config){}, w.listeners...)
	w.mu.Unlock()

	w.logger.Info("config.reload.done",
		slog.Any("paths", w.paths),
		slog.String("log_level", next.Log.Level))
	for _, fn := range listeners {
		fn(old, next)
	}
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := LoadOptions(w.opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stampOf(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

// overlayPath names the profile overlay of base whether or not it exists.
func overlayPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	return filepath.Join(filepath.Dir(base), name+"."+profile+ext)
}

// WatchConfig creates a watcher for opts and starts it. It returns the
// watcher and the initial configuration.
func WatchConfig(ctx context.Context, opts Options, wopts ...WatcherOption) (*Watcher, *Config, error) {
	w, err := NewWatcher(opts, wopts...)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, w.Config(), nil
}
