package infra

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Audio capture parameters. The encoder consumes interleaved stereo f32le
// at 48 kHz; a mono-only device gets its channel duplicated.
const (
	audioSampleRate      = 48000
	audioChannels        = 2
	audioFramesPerBuffer = 1024
	chunkBuffer          = 32
)

// PortAudioSource captures the default input device as raw PCM chunks.
// Audio is best-effort for replay purposes: failures surface through Stop
// but the recording session keeps running video-only without it.
// Single-use: create one per recording attempt.
type PortAudioSource struct {
	logger *zap.Logger
	chunks chan domain.PCMChunk
	quit   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	stopped bool
	failure error
}

var _ domain.AudioSource = (*PortAudioSource)(nil)

// NewPortAudioSource returns an unstarted source.
func NewPortAudioSource(logger *zap.Logger) *PortAudioSource {
	return &PortAudioSource{
		logger: logger,
		chunks: make(chan domain.PCMChunk, chunkBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start opens the default input device and begins streaming chunks. The
// returned channel closes when the stream ends for any reason; Stop reports
// whether that end was a failure.
func (s *PortAudioSource) Start(ctx context.Context) (<-chan domain.PCMChunk, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, domain.NewCaptureError("initialize audio", err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, domain.NewCaptureError("resolve input device", err)
	}

	channels := audioChannels
	if dev.MaxInputChannels < channels {
		channels = dev.MaxInputChannels
	}
	if channels < 1 {
		portaudio.Terminate()
		return nil, domain.NewCaptureError("resolve input device",
			errors.New("default input device has no input channels"))
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      audioSampleRate,
		FramesPerBuffer: audioFramesPerBuffer,
	}

	buf := make([]float32, audioFramesPerBuffer*channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, domain.NewCaptureError("open audio stream", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, domain.NewCaptureError("start audio stream", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.started = true
	s.mu.Unlock()

	s.logger.Info("audio capture started",
		zap.String("device", dev.Name),
		zap.Int("channels", channels),
		zap.Int("sample_rate", audioSampleRate))

	go s.readChunks(ctx, stream, buf, channels)
	return s.chunks, nil
}

// Stop tears the stream down and returns the stream failure, if any.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	alreadyStopped := s.stopped
	s.stopped = true
	stream := s.stream
	s.mu.Unlock()

	if !alreadyStopped {
		close(s.quit)
		stream.Stop()
		stream.Close()
		portaudio.Terminate()
	}
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *PortAudioSource) readChunks(ctx context.Context, stream *portaudio.Stream, buf []float32, channels int) {
	defer close(s.done)
	defer close(s.chunks)

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// Device outran us; the lost buffer is already gone.
				continue
			}
			s.recordFailure(err)
			return
		}

		samples := buf
		if channels == 1 {
			samples = monoToStereo(buf)
		}
		s.sendChunk(domain.PCMChunk{
			Data:      f32leBytes(samples),
			Samples:   audioFramesPerBuffer,
			Timestamp: time.Now(),
		})
	}
}

// sendChunk delivers a chunk without blocking the device thread: when the
// consumer lags, the oldest buffered chunk is dropped.
func (s *PortAudioSource) sendChunk(chunk domain.PCMChunk) {
	select {
	case s.chunks <- chunk:
		return
	default:
	}
	select {
	case <-s.chunks:
	default:
	}
	select {
	case s.chunks <- chunk:
	default:
	}
}

func (s *PortAudioSource) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.failure != nil {
		return
	}
	s.failure = domain.NewCaptureError("audio capture stream", err)
}

// f32leBytes serializes samples as the little-endian float32 stream the
// encoder's f32le input expects.
func f32leBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// monoToStereo duplicates a mono buffer into interleaved stereo.
func monoToStereo(mono []float32) []float32 {
	out := make([]float32, len(mono)*2)
	for i, v := range mono {
		out[i*2] = v
		out[i*2+1] = v
	}
	return out
}
