//go:build integration

package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/buffer"
	"github.com/mgrindstad/replayd/internal/config"
	"github.com/mgrindstad/replayd/internal/daemon"
	"github.com/mgrindstad/replayd/internal/domain"
	"github.com/mgrindstad/replayd/internal/status"
	"github.com/mgrindstad/replayd/internal/usecase"
)

// stubScanner is a swappable process-table snapshot. The watcher polls it
// exactly like the real gopsutil-backed scanner.
type stubScanner struct {
	mu    sync.Mutex
	procs []domain.ProcessInfo
}

func (s *stubScanner) Snapshot() ([]domain.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProcessInfo(nil), s.procs...), nil
}

func (s *stubScanner) set(procs ...domain.ProcessInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = procs
}

// stubSession stands in for the capture pipeline: starting it fills the ring
// with a few sealed segments, as if recording had been running for a moment.
type stubSession struct {
	ring     *buffer.Ring
	failures chan error

	mu      sync.Mutex
	started int
	stopped int
}

func newStubSession(ring *buffer.Ring) *stubSession {
	return &stubSession{ring: ring, failures: make(chan error, 1)}
}

func (s *stubSession) Start(ctx context.Context, app domain.ApplicationMatch) {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()

	for i := 0; i < 3; i++ {
		s.ring.Append(&domain.Segment{
			Seq:      uint64(i),
			Start:    time.Now(),
			Duration: time.Second,
			Video:    []byte("video-payload-"),
			Audio:    []byte("audio-payload-"),
			Frames:   60,
		})
	}
}

func (s *stubSession) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *stubSession) Failures() <-chan error { return s.failures }

func (s *stubSession) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// fileMuxer writes the concatenated streams straight to the destination path
// so clips land on disk without needing ffmpeg. An optional delay holds the
// flush open long enough for in-flight assertions.
type fileMuxer struct {
	mu    sync.Mutex
	delay time.Duration
	muxed int
}

func (m *fileMuxer) Mux(ctx context.Context, video, audio []byte, destPath string) error {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	payload := append(append([]byte{}, video...), audio...)
	if err := os.WriteFile(destPath, payload, 0o644); err != nil {
		return err
	}

	m.mu.Lock()
	m.muxed++
	m.mu.Unlock()
	return nil
}

func (m *fileMuxer) setDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *fileMuxer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muxed
}

// stubHotkeys delivers presses on demand and records the armed key.
type stubHotkeys struct {
	mu      sync.Mutex
	bound   string
	presses chan time.Time
}

func newStubHotkeys() *stubHotkeys {
	return &stubHotkeys{presses: make(chan time.Time, 8)}
}

func (h *stubHotkeys) Bind(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = name
	return nil
}

func (h *stubHotkeys) Unbind() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bound = ""
}

func (h *stubHotkeys) Presses() <-chan time.Time { return h.presses }

func (h *stubHotkeys) press() { h.presses <- time.Now() }

func (h *stubHotkeys) current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

var _ = Describe("Replay Daemon", func() {
	var (
		tmpDir     string
		configPath string
		clipsDir   string

		cfg      *config.Config
		ring     *buffer.Ring
		tracker  *status.Tracker
		scanner  *stubScanner
		session  *stubSession
		muxer    *fileMuxer
		hk       *stubHotkeys
		cancel   context.CancelFunc
		ctrlDone chan struct{}
	)

	rocketLeague := domain.ProcessInfo{PID: 4242, Name: "RocketLeague.exe"}

	waitForState := func(state domain.DaemonState) {
		Eventually(func() domain.DaemonState {
			return tracker.Snapshot().State
		}, "5s", "20ms").Should(Equal(state))
	}

	clipCount := func() int {
		matches, _ := filepath.Glob(filepath.Join(clipsDir, "Rocket League", "*.mp4"))
		return len(matches)
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "replayd-integration-*")
		Expect(err).NotTo(HaveOccurred())
		configPath = filepath.Join(tmpDir, "config.toml")
		clipsDir = filepath.Join(tmpDir, "clips")

		overrideHotkey := "F9"
		cfg = &config.Config{
			BufferLengthSecs: 10,
			Hotkey:           "F8",
			ClipOutputDir:    clipsDir,
			Applications: []config.Application{
				{
					DisplayName:    "Rocket League",
					ExecutableName: "RocketLeague.exe",
					Hotkey:         &overrideHotkey,
				},
			},
		}
		Expect(cfg.Save(configPath)).To(Succeed())

		logger, _ := zap.NewDevelopment()

		ring = buffer.New(cfg.BufferLengthSecs)
		tracker = status.NewTracker("integration")
		scanner = &stubScanner{}
		session = newStubSession(ring)
		muxer = &fileMuxer{}
		hk = newStubHotkeys()

		watcher := daemon.NewProcWatcherWithInterval(scanner, cfg.Applications, 20*time.Millisecond, logger)
		configWatcher := config.NewWatcherWithDebounce(configPath, 20*time.Millisecond, logger)
		flusher := usecase.NewFlusher(ring, muxer, logger)

		controller := daemon.NewController(
			cfg,
			tracker,
			ring,
			session,
			flusher,
			hk,
			watcher,
			watcher.Events(),
			configWatcher.Updates(),
			logger,
		)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		ctrlDone = make(chan struct{})

		go func() { _ = watcher.Run(ctx) }()
		go func() { _ = configWatcher.Run(ctx) }()
		go func() {
			defer close(ctrlDone)
			_ = controller.Run(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(ctrlDone, "5s").Should(BeClosed())
		os.RemoveAll(tmpDir)
	})

	Describe("process detection", func() {
		Context("when a watched application launches", func() {
			It("should start recording it", func() {
				scanner.set(rocketLeague)

				waitForState(domain.StateRecording)
				snap := tracker.Snapshot()
				Expect(snap.ActiveApplication).To(Equal("Rocket League"))
				Expect(ring.Len()).To(BeNumerically(">", 0))
			})

			It("should arm the application's hotkey override", func() {
				Eventually(hk.current, "5s", "20ms").Should(Equal("F8"))

				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)
				Expect(hk.current()).To(Equal("F9"))
			})
		})

		Context("when the application exits", func() {
			It("should go idle and discard the buffer without saving", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				scanner.set()
				waitForState(domain.StateIdle)

				Expect(ring.Len()).To(BeZero())
				Expect(tracker.Snapshot().ActiveApplication).To(BeEmpty())
				Expect(clipCount()).To(BeZero())
				Expect(hk.current()).To(Equal("F8"))
			})
		})
	})

	Describe("clip flushing", func() {
		Context("when the hotkey is pressed while recording", func() {
			It("should write one clip into the application's folder", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				hk.press()

				Eventually(clipCount, "5s", "20ms").Should(Equal(1))
				waitForState(domain.StateRecording)

				snap := tracker.Snapshot()
				Expect(snap.LastClipPath).To(ContainSubstring("Rocket League"))
				Expect(snap.LastClipTimestamp).NotTo(BeEmpty())
				Expect(snap.Error).To(BeEmpty())

				data, err := os.ReadFile(snap.LastClipPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(data).NotTo(BeEmpty())
			})
		})

		Context("when the hotkey is pressed again during a flush", func() {
			It("should ignore the second press", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				muxer.setDelay(150 * time.Millisecond)
				hk.press()
				waitForState(domain.StateFlushing)
				hk.press()

				waitForState(domain.StateRecording)
				Expect(muxer.count()).To(Equal(1))
				Consistently(muxer.count, "300ms", "50ms").Should(Equal(1))
			})
		})

		Context("when the hotkey is pressed while idle", func() {
			It("should write nothing", func() {
				hk.press()

				Consistently(clipCount, "300ms", "50ms").Should(BeZero())
				Expect(tracker.Snapshot().State).To(Equal(domain.StateIdle))
			})
		})
	})

	Describe("configuration hot reload", func() {
		Context("when the buffer length changes during a session", func() {
			It("should resize the ring without restarting the session", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				updated := *cfg
				updated.BufferLengthSecs = 30
				Expect(updated.Save(configPath)).To(Succeed())

				Eventually(ring.Capacity, "5s", "20ms").Should(Equal(30))
				Expect(session.stopCount()).To(BeZero())
				Expect(tracker.Snapshot().State).To(Equal(domain.StateRecording))
			})
		})

		Context("when the active application is removed from the config", func() {
			It("should stop recording and go idle", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				updated := *cfg
				updated.Applications = nil
				Expect(updated.Save(configPath)).To(Succeed())

				waitForState(domain.StateIdle)
				Expect(tracker.Snapshot().ActiveApplication).To(BeEmpty())
			})
		})
	})

	Describe("session failure", func() {
		Context("when the capture pipeline dies permanently", func() {
			It("should go idle and publish the error", func() {
				scanner.set(rocketLeague)
				waitForState(domain.StateRecording)

				session.failures <- domain.NewCaptureError("screen capture",
					errors.New("display disconnected"))

				waitForState(domain.StateIdle)
				snap := tracker.Snapshot()
				Expect(snap.Error).To(ContainSubstring("display disconnected"))
				Expect(snap.ActiveApplication).To(BeEmpty())
			})
		})
	})
})
