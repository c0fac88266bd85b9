package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// DefaultDebounce coalesces rapid successive writes (editors and the
// control app often write a file several times in a burst) into a single
// reload of the final content.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the configuration file and publishes validated snapshots.
// Invalid or unparsable updates are logged and dropped; the previously
// accepted configuration stays authoritative.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	updates  chan *Config

	mu          sync.Mutex
	reloadTimer *time.Timer
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string, logger *zap.Logger) *Watcher {
	return NewWatcherWithDebounce(path, DefaultDebounce, logger)
}

// NewWatcherWithDebounce creates a watcher with a custom debounce window
// (for tests).
func NewWatcherWithDebounce(path string, debounce time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		updates:  make(chan *Config, 4),
	}
}

// Updates delivers each accepted configuration snapshot.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Run watches until the context is canceled. The parent directory is
// watched rather than the file itself so replace-by-rename and first
// creation are both observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.NewConfigError("create file watcher", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return domain.NewConfigError("watch config directory", err)
	}

	w.logger.Info("watching configuration file", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.isConfigEvent(ev) {
				w.scheduleReload()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) isConfigEvent(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != filepath.Base(w.path) {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// scheduleReload resets the debounce timer; only the last write of a burst
// triggers a reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
	}
	w.reloadTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reloadTimer != nil {
		w.reloadTimer.Stop()
		w.reloadTimer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("configuration update rejected, keeping previous",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	select {
	case w.updates <- cfg:
		w.logger.Info("configuration reloaded",
			zap.Int("buffer_length_secs", cfg.BufferLengthSecs),
			zap.Int("applications", len(cfg.Applications)))
	default:
		w.logger.Warn("config update channel full, dropping reload")
	}
}
