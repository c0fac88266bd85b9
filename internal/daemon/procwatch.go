// Package daemon wires the capture pipeline to the outside world: process
// watching, session supervision and the state-machine controller.
package daemon

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/config"
	"github.com/mgrindstad/replayd/internal/domain"
)

// DefaultScanInterval is how often the process table is polled. Two seconds
// keeps detection latency low without measurable CPU cost.
const DefaultScanInterval = 2 * time.Second

const eventBuffer = 32

// ProcessEventKind distinguishes appearance from disappearance.
type ProcessEventKind int

const (
	ProcessStarted ProcessEventKind = iota
	ProcessStopped
)

// ProcessEvent reports a configured application starting or stopping.
type ProcessEvent struct {
	Kind  ProcessEventKind
	Match domain.ApplicationMatch
}

// ProcWatcher polls the process table and reports transitions of configured
// applications. At most one application is considered active at a time: the
// first configured entry found running wins, in configuration order.
type ProcWatcher struct {
	scanner  domain.ProcessScanner
	interval time.Duration
	logger   *zap.Logger
	events   chan ProcessEvent

	mu     sync.Mutex
	apps   []config.Application
	active *domain.ApplicationMatch
}

// NewProcWatcher creates a watcher over the given application list.
func NewProcWatcher(scanner domain.ProcessScanner, apps []config.Application, logger *zap.Logger) *ProcWatcher {
	return NewProcWatcherWithInterval(scanner, apps, DefaultScanInterval, logger)
}

// NewProcWatcherWithInterval creates a watcher with a custom poll interval
// (for tests).
func NewProcWatcherWithInterval(scanner domain.ProcessScanner, apps []config.Application, interval time.Duration, logger *zap.Logger) *ProcWatcher {
	return &ProcWatcher{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
		events:   make(chan ProcessEvent, eventBuffer),
		apps:     apps,
	}
}

// Events delivers start/stop transitions in detection order.
func (w *ProcWatcher) Events() <-chan ProcessEvent {
	return w.events
}

// SetApplications swaps the watched application list. If the currently
// active application was removed, it is forgotten without emitting a stop
// event: the config update handler owns that transition.
func (w *ProcWatcher) SetApplications(apps []config.Application) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.apps = apps
	if w.active == nil {
		return
	}
	for _, app := range apps {
		if strings.EqualFold(app.ExecutableName, w.active.ExecutableName) {
			return
		}
	}
	w.active = nil
}

// Run polls until ctx is canceled. The first scan happens immediately so an
// application already running at daemon start is picked up without waiting
// a full interval.
func (w *ProcWatcher) Run(ctx context.Context) error {
	w.logger.Info("process watcher started",
		zap.Duration("interval", w.interval),
		zap.Int("applications", len(w.apps)))

	w.scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("process watcher stopping")
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan diffs one process-table snapshot against the active application.
// Scan failures are logged and skipped; polling continues.
func (w *ProcWatcher) scan(ctx context.Context) {
	procs, err := w.scanner.Snapshot()
	if err != nil {
		w.logger.Warn("process scan failed", zap.Error(err))
		return
	}

	present := make(map[string]domain.ProcessInfo, len(procs))
	for _, p := range procs {
		name := strings.ToLower(p.Name)
		if _, ok := present[name]; !ok {
			present[name] = p
		}
	}

	w.mu.Lock()
	apps := w.apps
	active := w.active
	w.mu.Unlock()

	if active != nil {
		if _, ok := present[strings.ToLower(active.ExecutableName)]; ok {
			return
		}
		w.setActive(nil)
		w.emit(ctx, ProcessEvent{Kind: ProcessStopped, Match: *active})
	}

	for _, app := range apps {
		proc, ok := present[strings.ToLower(app.ExecutableName)]
		if !ok {
			continue
		}
		match := domain.ApplicationMatch{
			DisplayName:    app.DisplayName,
			ExecutableName: app.ExecutableName,
			PID:            proc.PID,
		}
		w.setActive(&match)
		w.emit(ctx, ProcessEvent{Kind: ProcessStarted, Match: match})
		return
	}
}

func (w *ProcWatcher) setActive(match *domain.ApplicationMatch) {
	w.mu.Lock()
	w.active = match
	w.mu.Unlock()
}

func (w *ProcWatcher) emit(ctx context.Context, ev ProcessEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
