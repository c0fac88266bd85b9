package daemon

import (
	"context"
	"errors"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
	"github.com/mgrindstad/replayd/internal/infra"
	"github.com/mgrindstad/replayd/internal/resilience"
	"github.com/mgrindstad/replayd/internal/usecase"
)

const failureBuffer = 4

// PipelineFactory builds fresh pipeline stages for each capture attempt.
// Subprocess-backed stages are single-use, so every retry needs new ones.
type PipelineFactory struct {
	VideoSource  func() domain.VideoSource
	AudioSource  func() domain.AudioSource
	VideoEncoder func() domain.VideoEncoder
	AudioEncoder func() domain.AudioEncoder
}

// SegmentStore is what a running session needs from the segment buffer:
// appends from the segmenter and a wipe on every (re)start so sequence
// numbering stays gapless.
type SegmentStore interface {
	Append(seg *domain.Segment)
	Clear()
}

// Manager supervises at most one capture session. A session is the whole
// pipeline treated as a unit: if any stage dies while the application still
// runs, the pipeline is rebuilt with bounded backoff. Exhausted retries are
// reported on Failures; the manager then stays quiet until the next Start.
type Manager struct {
	factory PipelineFactory
	store   SegmentStore
	retry   resilience.Config
	logger  *zap.Logger

	failures chan error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager appending segments to store.
func NewManager(factory PipelineFactory, store SegmentStore, logger *zap.Logger) *Manager {
	return &Manager{
		factory:  factory,
		store:    store,
		retry:    resilience.DefaultConfig(),
		logger:   logger,
		failures: make(chan error, failureBuffer),
	}
}

// Failures delivers the terminal error of a session whose retries were
// exhausted while its application was still running.
func (m *Manager) Failures() <-chan error {
	return m.failures
}

// Start launches a supervised session for app. It returns immediately;
// failures surface on Failures. A still-running previous session is stopped
// first, so at most one pipeline exists at a time.
func (m *Manager) Start(ctx context.Context, app domain.ApplicationMatch) {
	m.Stop()

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go m.supervise(sessionCtx, app, done)
}

// Stop tears down the current session and waits for the pipeline to release
// its subprocesses and devices. Idempotent; a no-op when nothing runs.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) supervise(ctx context.Context, app domain.ApplicationMatch, done chan struct{}) {
	defer close(done)

	logger := m.logger.With(zap.String("session_id", uuid.NewString()))

	err := resilience.Retry(ctx, m.retry, logger, func() error {
		m.store.Clear()
		return m.runAttempt(ctx, logger, app)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	logger.Error("capture session failed permanently",
		zap.String("application", app.DisplayName),
		zap.Error(err))
	select {
	case m.failures <- err:
	default:
		logger.Warn("session failure dropped, channel full")
	}
}

// runAttempt builds and runs one complete pipeline. It returns nil when the
// session ended deliberately (ctx canceled) and an error in every other
// case, including a pipeline that just stopped producing.
func (m *Manager) runAttempt(ctx context.Context, logger *zap.Logger, app domain.ApplicationMatch) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	video := m.factory.VideoSource()
	frames, err := video.Start(attemptCtx)
	if err != nil {
		return permanentIfMissing(err)
	}

	venc := m.factory.VideoEncoder()
	units, err := venc.Start(attemptCtx, frames)
	if err != nil {
		_ = video.Stop()
		return permanentIfMissing(err)
	}

	// Audio is best effort: a machine without an input device still records.
	var (
		audio      domain.AudioSource
		aenc       domain.AudioEncoder
		audioUnits <-chan domain.AudioUnit
	)
	audio = m.factory.AudioSource()
	chunks, err := audio.Start(attemptCtx)
	if err != nil {
		logger.Warn("audio capture unavailable, recording video only", zap.Error(err))
		audio = nil
	} else {
		aenc = m.factory.AudioEncoder()
		audioUnits, err = aenc.Start(attemptCtx, chunks)
		if err != nil {
			logger.Warn("audio encoder unavailable, recording video only", zap.Error(err))
			_ = audio.Stop()
			audio, aenc = nil, nil
		}
	}

	logger.Info("capture session started",
		zap.String("application", app.DisplayName),
		zap.Int32("pid", app.PID),
		zap.Bool("audio", audio != nil))

	segmenter := usecase.NewSegmenter(m.store, infra.CaptureFPS, logger)
	segmenter.Run(attemptCtx, units, audioUnits)

	// The segmenter returned: deliberate teardown or a dead pipeline.
	cancel()
	failure := stopStages(video, venc, audio, aenc)

	if ctx.Err() != nil {
		return nil
	}
	if failure != nil {
		return failure
	}
	// No stage reported an error yet the stream ended while the application
	// is still running. Treat as a failure so the supervisor rebuilds.
	return domain.NewEncodeError("capture pipeline",
		errors.New("encoded stream ended unexpectedly"))
}

// stopStages tears the pipeline down in order and joins whatever terminal
// errors the stages recorded.
func stopStages(video domain.VideoSource, venc domain.VideoEncoder, audio domain.AudioSource, aenc domain.AudioEncoder) error {
	errs := []error{video.Stop(), venc.Stop()}
	if audio != nil {
		errs = append(errs, audio.Stop())
	}
	if aenc != nil {
		errs = append(errs, aenc.Stop())
	}
	return errors.Join(errs...)
}

// permanentIfMissing keeps the retry loop from spinning on a vanished
// ffmpeg binary; every other spawn failure may be transient.
func permanentIfMissing(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return resilience.Permanent(err)
	}
	return err
}
