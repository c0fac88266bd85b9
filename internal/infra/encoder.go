package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Encoding parameters. One keyframe per second (GOP = fps plus a forced
// keyframe expression for grabbers with uneven timing) is what makes
// one-second segments independently decodable.
const (
	videoBitrate = "8M"
	audioBitrate = "192k"
	gopFrames    = CaptureFPS

	unitBuffer = 16
)

// FFmpegVideoEncoder compresses raw BGRA frames into an H.264 Annex-B
// stream through an ffmpeg subprocess, reframed into timestamped access
// units. Single-use: create one per recording attempt.
type FFmpegVideoEncoder struct {
	encoderName string
	logger      *zap.Logger
	units       chan domain.VideoUnit
	stderr      syncBuffer
	quit        chan struct{}
	wg          sync.WaitGroup

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	failure error
}

var _ domain.VideoEncoder = (*FFmpegVideoEncoder)(nil)

// NewFFmpegVideoEncoder returns an unstarted encoder using the probed
// encoder name (hardware where available, libx264 otherwise).
func NewFFmpegVideoEncoder(encoderName string, logger *zap.Logger) *FFmpegVideoEncoder {
	return &FFmpegVideoEncoder{
		encoderName: encoderName,
		logger:      logger,
		units:       make(chan domain.VideoUnit, unitBuffer),
		quit:        make(chan struct{}),
	}
}

// Start launches the encoder subprocess, feeding it frames and parsing
// access units off its stdout. The returned channel closes when the encoded
// stream ends; Stop reports whether that end was a failure.
func (e *FFmpegVideoEncoder) Start(ctx context.Context, frames <-chan domain.RawFrame) (<-chan domain.VideoUnit, error) {
	cmd := exec.CommandContext(ctx, ffmpegBin, videoEncodeArgs(e.encoderName)...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, domain.NewEncodeError("open video encoder stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.NewEncodeError("open video encoder stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, domain.NewEncodeError("start video encoder", err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()

	e.logger.Info("video encoder started",
		zap.String("encoder", e.encoderName),
		zap.String("bitrate", videoBitrate),
		zap.Int("gop", gopFrames))

	e.wg.Add(2)
	go e.feedFrames(stdin, frames)
	go e.readUnits(stdout)
	return e.units, nil
}

// Stop tears the subprocess down and returns the stream failure, if any.
func (e *FFmpegVideoEncoder) Stop() error {
	e.mu.Lock()
	if e.cmd == nil {
		e.mu.Unlock()
		return nil
	}
	alreadyStopped := e.stopped
	e.stopped = true
	cmd := e.cmd
	e.mu.Unlock()

	if !alreadyStopped {
		close(e.quit)
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

func (e *FFmpegVideoEncoder) feedFrames(stdin io.WriteCloser, frames <-chan domain.RawFrame) {
	defer e.wg.Done()
	defer stdin.Close()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				// Source ended; closing stdin drains the encoder cleanly.
				return
			}
			if _, err := stdin.Write(frame.Data); err != nil {
				e.recordFailure("feed video encoder", err)
				return
			}
		case <-e.quit:
			return
		}
	}
}

func (e *FFmpegVideoEncoder) readUnits(stdout io.ReadCloser) {
	defer e.wg.Done()
	defer close(e.units)

	splitter := NewAnnexBSplitter()
	buf := make([]byte, 64<<10)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			for _, unit := range splitter.Write(buf[:n]) {
				unit.Timestamp = time.Now()
				if !e.send(unit) {
					return
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				for _, unit := range splitter.Flush() {
					unit.Timestamp = time.Now()
					if !e.send(unit) {
						return
					}
				}
			} else {
				e.recordFailure("video encoder stream", readErr)
			}
			return
		}
	}
}

func (e *FFmpegVideoEncoder) send(unit domain.VideoUnit) bool {
	select {
	case e.units <- unit:
		return true
	case <-e.quit:
		return false
	}
}

func (e *FFmpegVideoEncoder) recordFailure(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.failure != nil {
		return
	}
	if tail := stderrTail(e.stderr.String()); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	e.failure = domain.NewEncodeError(op, err)
}

// videoEncodeArgs builds the raw-BGRA-to-Annex-B invocation. dump_extra
// repeats SPS/PPS ahead of every keyframe so any segment-aligned suffix of
// the stream decodes on its own.
func videoEncodeArgs(encoderName string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-video_size", fmt.Sprintf("%dx%d", captureWidth, captureHeight),
		"-framerate", strconv.Itoa(CaptureFPS),
		"-i", "pipe:0",
		"-c:v", encoderName,
		"-b:v", videoBitrate,
		"-g", strconv.Itoa(gopFrames),
		"-bf", "0",
		"-force_key_frames", "expr:gte(t,n_forced*1)",
		"-bsf:v", "dump_extra=freq=keyframe",
		"-f", "h264",
		"pipe:1",
	}
}

// FFmpegAudioEncoder compresses raw PCM into AAC ADTS frames through an
// ffmpeg subprocess. Single-use: create one per recording attempt.
type FFmpegAudioEncoder struct {
	logger *zap.Logger
	units  chan domain.AudioUnit
	stderr syncBuffer
	quit   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
	failure error
}

var _ domain.AudioEncoder = (*FFmpegAudioEncoder)(nil)

// NewFFmpegAudioEncoder returns an unstarted encoder.
func NewFFmpegAudioEncoder(logger *zap.Logger) *FFmpegAudioEncoder {
	return &FFmpegAudioEncoder{
		logger: logger,
		units:  make(chan domain.AudioUnit, unitBuffer),
		quit:   make(chan struct{}),
	}
}

// Start launches the encoder subprocess, feeding it PCM chunks and parsing
// ADTS frames off its stdout. The returned channel closes when the encoded
// stream ends; Stop reports whether that end was a failure.
func (e *FFmpegAudioEncoder) Start(ctx context.Context, chunks <-chan domain.PCMChunk) (<-chan domain.AudioUnit, error) {
	cmd := exec.CommandContext(ctx, ffmpegBin, audioEncodeArgs()...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, domain.NewEncodeError("open audio encoder stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.NewEncodeError("open audio encoder stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, domain.NewEncodeError("start audio encoder", err)
	}

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()

	e.logger.Info("audio encoder started",
		zap.Int("sample_rate", audioSampleRate),
		zap.Int("channels", audioChannels),
		zap.String("bitrate", audioBitrate))

	e.wg.Add(2)
	go e.feedChunks(stdin, chunks)
	go e.readFrames(stdout)
	return e.units, nil
}

// Stop tears the subprocess down and returns the stream failure, if any.
func (e *FFmpegAudioEncoder) Stop() error {
	e.mu.Lock()
	if e.cmd == nil {
		e.mu.Unlock()
		return nil
	}
	alreadyStopped := e.stopped
	e.stopped = true
	cmd := e.cmd
	e.mu.Unlock()

	if !alreadyStopped {
		close(e.quit)
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
	}
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

func (e *FFmpegAudioEncoder) feedChunks(stdin io.WriteCloser, chunks <-chan domain.PCMChunk) {
	defer e.wg.Done()
	defer stdin.Close()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if _, err := stdin.Write(chunk.Data); err != nil {
				e.recordFailure("feed audio encoder", err)
				return
			}
		case <-e.quit:
			return
		}
	}
}

func (e *FFmpegAudioEncoder) readFrames(stdout io.ReadCloser) {
	defer e.wg.Done()
	defer close(e.units)

	parser := NewADTSParser()
	buf := make([]byte, 16<<10)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			for _, unit := range parser.Write(buf[:n]) {
				unit.Timestamp = time.Now()
				select {
				case e.units <- unit:
				case <-e.quit:
					return
				}
			}
		}
		if readErr != nil {
			// ADTS frames are self-delimiting; nothing to flush at EOF.
			if !errors.Is(readErr, io.EOF) {
				e.recordFailure("audio encoder stream", readErr)
			}
			return
		}
	}
}

func (e *FFmpegAudioEncoder) recordFailure(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.failure != nil {
		return
	}
	if tail := stderrTail(e.stderr.String()); tail != "" {
		err = fmt.Errorf("%w: %s", err, tail)
	}
	e.failure = domain.NewEncodeError(op, err)
}

// audioEncodeArgs builds the raw-PCM-to-ADTS invocation.
func audioEncodeArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", strconv.Itoa(audioChannels),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-f", "adts",
		"pipe:1",
	}
}
