package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/config"
	"github.com/mgrindstad/replayd/internal/domain"
	"github.com/mgrindstad/replayd/internal/infra"
	"github.com/mgrindstad/replayd/internal/status"
	"github.com/mgrindstad/replayd/internal/usecase"
)

// SessionStarter abstracts the capture session manager.
type SessionStarter interface {
	Start(ctx context.Context, app domain.ApplicationMatch)
	Stop()
	Failures() <-chan error
}

// ClipFlusher abstracts the buffer-to-MP4 flush.
type ClipFlusher interface {
	Flush(ctx context.Context, req usecase.FlushRequest) (*domain.Clip, error)
}

// ApplicationSink receives the application list of each accepted config.
type ApplicationSink interface {
	SetApplications(apps []config.Application)
}

// SegmentBuffer is the controller's view of the segment store: sized from
// config and wiped at session boundaries.
type SegmentBuffer interface {
	Resize(capacitySecs int)
	Clear()
}

type flushResult struct {
	clip *domain.Clip
	err  error
}

// Controller owns the daemon state machine. It is the single goroutine that
// transitions state and writes the status tracker; everything else talks to
// it over channels. States: idle (watching) -> recording (app running) ->
// flushing (clip being written) and back.
type Controller struct {
	cfg     *config.Config
	tracker *status.Tracker
	buffer  SegmentBuffer
	session SessionStarter
	flusher ClipFlusher
	hotkeys domain.HotkeyBinder
	apps    ApplicationSink

	procEvents    <-chan ProcessEvent
	configUpdates <-chan *config.Config
	logger        *zap.Logger

	state     domain.DaemonState
	active    *domain.ApplicationMatch
	flushDone chan flushResult
	flushing  int // in-flight flush goroutines, for shutdown
}

// NewController wires the state machine. cfg is the startup configuration
// snapshot; later snapshots arrive on configUpdates.
func NewController(
	cfg *config.Config,
	tracker *status.Tracker,
	buffer SegmentBuffer,
	session SessionStarter,
	flusher ClipFlusher,
	hotkeys domain.HotkeyBinder,
	apps ApplicationSink,
	procEvents <-chan ProcessEvent,
	configUpdates <-chan *config.Config,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		cfg:           cfg,
		tracker:       tracker,
		buffer:        buffer,
		session:       session,
		flusher:       flusher,
		hotkeys:       hotkeys,
		apps:          apps,
		procEvents:    procEvents,
		configUpdates: configUpdates,
		logger:        logger,
		state:         domain.StateIdle,
		flushDone:     make(chan flushResult, 1),
	}
}

// Run drives the state machine until ctx is canceled. Shutdown stops any
// session immediately but lets an in-flight flush finish writing its clip.
func (c *Controller) Run(ctx context.Context) error {
	c.buffer.Resize(c.cfg.BufferLengthSecs)
	c.bindHotkey(c.cfg.Hotkey)
	c.logger.Info("controller started",
		zap.Int("applications", len(c.cfg.Applications)),
		zap.Int("buffer_length_secs", c.cfg.BufferLengthSecs),
		zap.String("hotkey", c.cfg.Hotkey))

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()

		case ev := <-c.procEvents:
			switch ev.Kind {
			case ProcessStarted:
				c.startRecording(ctx, ev.Match)
			case ProcessStopped:
				c.stopRecording()
			}

		case ts := <-c.hotkeys.Presses():
			c.handlePress(ctx, ts)

		case cfg := <-c.configUpdates:
			c.applyConfig(cfg)

		case res := <-c.flushDone:
			c.finishFlush(res)

		case err := <-c.session.Failures():
			c.handleSessionFailure(err)
		}
	}
}

// startRecording opens a capture session for a freshly matched application.
func (c *Controller) startRecording(ctx context.Context, match domain.ApplicationMatch) {
	if c.active != nil {
		c.logger.Warn("ignoring process start while a session is active",
			zap.String("application", match.DisplayName))
		return
	}

	settings := config.Resolve(c.cfg, c.cfg.FindApplication(match.ExecutableName))
	c.buffer.Clear()
	c.buffer.Resize(settings.BufferLengthSecs)
	c.bindHotkey(settings.Hotkey)

	active := match
	c.active = &active
	c.session.Start(ctx, match)

	c.setState(domain.StateRecording)
	c.tracker.SetActiveApplication(match.DisplayName)
	c.tracker.SetError(nil)

	c.logger.Info("recording started",
		zap.String("application", match.DisplayName),
		zap.String("executable", match.ExecutableName),
		zap.Int32("pid", match.PID),
		zap.Int("buffer_length_secs", settings.BufferLengthSecs),
		zap.String("hotkey", settings.Hotkey))
}

// stopRecording closes the session after the application exited (or was
// removed from the configuration). Buffered segments are discarded; there
// is no implicit save.
func (c *Controller) stopRecording() {
	if c.active == nil {
		return
	}
	display := c.active.DisplayName

	c.session.Stop()
	c.active = nil
	c.buffer.Clear()
	c.bindHotkey(c.cfg.Hotkey)
	c.tracker.SetActiveApplication("")

	if c.state == domain.StateFlushing {
		// Capture is already down; idle follows once the in-flight flush
		// finishes writing.
		c.logger.Info("recording stopped, waiting for flush to finish",
			zap.String("application", display))
		return
	}
	c.setState(domain.StateIdle)
	c.tracker.SetError(nil)
	c.logger.Info("recording stopped", zap.String("application", display))
}

// handlePress routes a hotkey press. Only the recording state accepts it.
func (c *Controller) handlePress(ctx context.Context, ts time.Time) {
	switch c.state {
	case domain.StateRecording:
		c.beginFlush(ctx, ts)
	case domain.StateFlushing:
		c.logger.Debug("flush already in progress, ignoring press")
	default:
		c.logger.Debug("hotkey pressed while idle, ignoring")
	}
}

// beginFlush hands the snapshot work to a goroutine detached from daemon
// cancellation: once a clip write starts it is allowed to finish.
func (c *Controller) beginFlush(ctx context.Context, ts time.Time) {
	if c.active == nil {
		return
	}
	req := usecase.FlushRequest{
		OutputDir:   infra.ExpandEnv(c.cfg.ClipOutputDir),
		DisplayName: c.active.DisplayName,
		TriggeredAt: ts,
	}
	c.setState(domain.StateFlushing)
	c.flushing++

	flushCtx := context.WithoutCancel(ctx)
	go func() {
		clip, err := c.flusher.Flush(flushCtx, req)
		c.flushDone <- flushResult{clip: clip, err: err}
	}()
}

// finishFlush records the outcome and resumes recording, or goes idle when
// the application exited while the clip was being written.
func (c *Controller) finishFlush(res flushResult) {
	c.flushing--
	c.recordFlushResult(res)

	if c.state != domain.StateFlushing {
		return
	}
	if c.active == nil {
		c.setState(domain.StateIdle)
		return
	}
	c.setState(domain.StateRecording)
}

func (c *Controller) recordFlushResult(res flushResult) {
	if res.err != nil {
		c.logger.Error("flush failed", zap.Error(res.err))
		c.tracker.SetError(res.err)
		return
	}
	c.tracker.SetClip(*res.clip)
}

// applyConfig installs an accepted configuration snapshot, live-adjusting a
// running session where possible.
func (c *Controller) applyConfig(cfg *config.Config) {
	c.cfg = cfg
	c.apps.SetApplications(cfg.Applications)

	if c.active == nil {
		c.buffer.Resize(cfg.BufferLengthSecs)
		c.bindHotkey(cfg.Hotkey)
		c.logger.Info("configuration applied",
			zap.Int("applications", len(cfg.Applications)),
			zap.Int("buffer_length_secs", cfg.BufferLengthSecs))
		return
	}

	app := cfg.FindApplication(c.active.ExecutableName)
	if app == nil {
		// The active application is gone from the configuration: treated
		// exactly as if its process had exited.
		c.logger.Info("active application removed from configuration",
			zap.String("application", c.active.DisplayName))
		c.stopRecording()
		return
	}

	settings := config.Resolve(cfg, app)
	c.buffer.Resize(settings.BufferLengthSecs)
	c.bindHotkey(settings.Hotkey)
	c.logger.Info("configuration applied to live session",
		zap.String("application", c.active.DisplayName),
		zap.Int("buffer_length_secs", settings.BufferLengthSecs),
		zap.String("hotkey", settings.Hotkey))
}

// handleSessionFailure reacts to a session whose retries are exhausted: the
// daemon stays alive and watching, with the error published in status. The
// session restarts when the application exits and launches again.
func (c *Controller) handleSessionFailure(err error) {
	if c.active == nil {
		return
	}
	c.logger.Error("recording session lost",
		zap.String("application", c.active.DisplayName),
		zap.Error(err))

	c.session.Stop()
	c.active = nil
	c.buffer.Clear()
	c.bindHotkey(c.cfg.Hotkey)
	c.tracker.SetActiveApplication("")
	c.tracker.SetError(err)

	if c.state != domain.StateFlushing {
		c.setState(domain.StateIdle)
	}
}

// shutdown tears everything down in order: session first, then wait for an
// in-flight flush so a clip the user asked for is never lost.
func (c *Controller) shutdown() {
	c.logger.Info("controller stopping")
	c.session.Stop()

	for c.flushing > 0 {
		res := <-c.flushDone
		c.flushing--
		c.recordFlushResult(res)
	}

	c.hotkeys.Unbind()
	c.active = nil
	c.tracker.SetActiveApplication("")
	c.setState(domain.StateIdle)
}

func (c *Controller) setState(state domain.DaemonState) {
	if c.state == state {
		return
	}
	c.logger.Info("state changed",
		zap.String("from", string(c.state)),
		zap.String("to", string(state)))
	c.state = state
	c.tracker.SetState(state)
}

func (c *Controller) bindHotkey(name string) {
	if err := c.hotkeys.Bind(name); err != nil {
		c.logger.Warn("hotkey disabled", zap.String("hotkey", name), zap.Error(err))
	}
}
