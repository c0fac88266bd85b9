package infra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// FFmpegMuxer wraps buffered elementary streams into an MP4 container by
// stream copy. No re-encoding happens on the flush path, so writing a clip
// costs I/O, not CPU.
type FFmpegMuxer struct {
	logger *zap.Logger
}

var _ domain.ClipMuxer = (*FFmpegMuxer)(nil)

// NewFFmpegMuxer returns a muxer logging through logger.
func NewFFmpegMuxer(logger *zap.Logger) *FFmpegMuxer {
	return &FFmpegMuxer{logger: logger}
}

// Mux stages the elementary streams as temp files and remuxes them into
// destPath. An empty audio stream produces a video-only clip; an empty video
// stream is an error since the result would not be a replay of anything.
func (m *FFmpegMuxer) Mux(ctx context.Context, video, audio []byte, destPath string) error {
	if len(video) == 0 {
		return domain.NewFlushError("mux clip", errors.New("no video data"))
	}

	id := uuid.NewString()
	videoPath := filepath.Join(os.TempDir(), "replayd-"+id+".h264")
	if err := os.WriteFile(videoPath, video, 0o600); err != nil {
		return domain.NewFlushError("stage video stream", err)
	}
	defer os.Remove(videoPath)

	audioPath := ""
	if len(audio) > 0 {
		audioPath = filepath.Join(os.TempDir(), "replayd-"+id+".aac")
		if err := os.WriteFile(audioPath, audio, 0o600); err != nil {
			return domain.NewFlushError("stage audio stream", err)
		}
		defer os.Remove(audioPath)
	}

	cmd := exec.CommandContext(ctx, ffmpegBin, muxArgs(videoPath, audioPath, destPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return domain.NewFlushError("mux clip", fmt.Errorf("%w: %s", err, stderrTail(stderr.String())))
	}

	m.logger.Debug("muxed clip",
		zap.String("path", destPath),
		zap.Int("video_bytes", len(video)),
		zap.Int("audio_bytes", len(audio)))
	return nil
}

// muxArgs builds the stream-copy invocation. +faststart moves the moov atom
// to the front so players can seek before reading the whole file.
func muxArgs(videoPath, audioPath, destPath string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "h264", "-framerate", strconv.Itoa(CaptureFPS), "-i", videoPath,
	}
	if audioPath != "" {
		args = append(args, "-f", "aac", "-i", audioPath)
	}
	return append(args,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", destPath,
	)
}
