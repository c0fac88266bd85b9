package infra

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Capture geometry. The grabber scales whatever the display delivers down
// (or up) to this, so every downstream stage sees a fixed frame size.
// CaptureFPS is exported because segment durations derive from it.
const (
	CaptureFPS = 60

	captureWidth  = 1920
	captureHeight = 1080

	frameBytes  = captureWidth * captureHeight * 4 // BGRA
	frameBuffer = 8
)

// ScreenSource captures the primary display as raw BGRA frames through an
// ffmpeg grab subprocess. Platform differences are confined to the input
// arguments (gdigrab / x11grab / avfoundation); everything after the pipe is
// identical. Single-use: create one per recording attempt.
type ScreenSource struct {
	logger *zap.Logger
	frames chan domain.RawFrame
	stderr syncBuffer
	done   chan struct{}

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	failure error
}

var _ domain.VideoSource = (*ScreenSource)(nil)

// NewScreenSource returns an unstarted source.
func NewScreenSource(logger *zap.Logger) *ScreenSource {
	return &ScreenSource{
		logger: logger,
		frames: make(chan domain.RawFrame, frameBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the grab subprocess and begins streaming frames. The
// returned channel closes when the stream ends for any reason; Stop reports
// whether that end was a failure.
func (s *ScreenSource) Start(ctx context.Context) (<-chan domain.RawFrame, error) {
	args := append(grabArgs(), rawVideoOutputArgs()...)
	cmd := exec.CommandContext(ctx, ffmpegBin, args...)
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.NewCaptureError("open capture pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, domain.NewCaptureError("start screen capture", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	s.logger.Info("screen capture started",
		zap.Int("width", captureWidth),
		zap.Int("height", captureHeight),
		zap.Int("fps", CaptureFPS))

	go s.readFrames(stdout)
	return s.frames, nil
}

// Stop tears the subprocess down and returns the stream failure, if any.
// A nil return means the stream ended because Stop was requested.
func (s *ScreenSource) Stop() error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return nil
	}
	alreadyStopped := s.stopped
	s.stopped = true
	cmd := s.cmd
	s.mu.Unlock()

	if !alreadyStopped {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// readFrames slices the byte stream into fixed-size frames. It owns the
// frames channel and closes it on exit.
func (s *ScreenSource) readFrames(stdout io.ReadCloser) {
	defer close(s.done)
	defer close(s.frames)

	for {
		buf := make([]byte, frameBytes)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			s.recordFailure("screen capture stream", err)
			return
		}
		s.sendFrame(domain.RawFrame{Data: buf, Timestamp: time.Now()})
	}
}

// sendFrame delivers a frame without blocking the reader: when the consumer
// lags, the oldest buffered frame is dropped so the stream stays current.
func (s *ScreenSource) sendFrame(frame domain.RawFrame) {
	select {
	case s.frames <- frame:
		return
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
}

// recordFailure keeps the first stream error, unless the stream ended
// because Stop requested it.
func (s *ScreenSource) recordFailure(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.failure != nil {
		return
	}
	if tail := stderrTail(s.stderr.String()); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	s.failure = domain.NewCaptureError(op, err)
}

// rawVideoOutputArgs is the platform-independent half of the grab command:
// normalize geometry, emit raw BGRA on stdout.
func rawVideoOutputArgs() []string {
	return []string{
		"-vf", fmt.Sprintf("scale=%d:%d", captureWidth, captureHeight),
		"-pix_fmt", "bgra",
		"-f", "rawvideo",
		"pipe:1",
	}
}
