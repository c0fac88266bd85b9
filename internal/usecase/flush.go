package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// ClipTimestampLayout names clip files by local press time, using only
// characters that are valid on every supported filesystem.
const ClipTimestampLayout = "2006-01-02_15-04-05"

// SegmentSnapshotter yields a point-in-time copy of the buffered segments.
// *buffer.Ring satisfies it.
type SegmentSnapshotter interface {
	Snapshot() []*domain.Segment
}

// FlushRequest carries everything a flush needs from the moment the hotkey
// fired: the resolved output root (environment variables already expanded),
// the display name of the recorded application, and the press timestamp.
type FlushRequest struct {
	OutputDir   string
	DisplayName string
	TriggeredAt time.Time
}

// Flusher turns a snapshot of the segment store into an MP4 clip on disk.
// The store itself is never drained, so a failed flush leaves everything in
// place for a retry on the next press.
type Flusher struct {
	store  SegmentSnapshotter
	muxer  domain.ClipMuxer
	logger *zap.Logger
}

// NewFlusher creates a flusher reading from store and writing through muxer.
func NewFlusher(store SegmentSnapshotter, muxer domain.ClipMuxer, logger *zap.Logger) *Flusher {
	return &Flusher{store: store, muxer: muxer, logger: logger}
}

// Flush concatenates the snapshot into elementary streams and muxes them to
// <OutputDir>/<DisplayName>/<timestamp>.mp4. Segment concatenation yields
// valid streams by construction: every segment starts with an SPS/PPS-led
// IDR and contains only whole ADTS frames.
func (f *Flusher) Flush(ctx context.Context, req FlushRequest) (*domain.Clip, error) {
	segments := f.store.Snapshot()
	if len(segments) == 0 {
		return nil, domain.NewFlushError("snapshot segments", errors.New("segment store is empty"))
	}

	destDir := filepath.Join(req.OutputDir, SanitizeName(req.DisplayName))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, domain.NewFlushError("create clip directory", err)
	}
	destPath := filepath.Join(destDir, req.TriggeredAt.Format(ClipTimestampLayout)+".mp4")

	videoSize, audioSize := 0, 0
	for _, seg := range segments {
		videoSize += len(seg.Video)
		audioSize += len(seg.Audio)
	}
	video := make([]byte, 0, videoSize)
	audio := make([]byte, 0, audioSize)
	var duration time.Duration
	for _, seg := range segments {
		video = append(video, seg.Video...)
		audio = append(audio, seg.Audio...)
		duration += seg.Duration
	}

	if err := f.muxer.Mux(ctx, video, audio, destPath); err != nil {
		return nil, err
	}

	clip := &domain.Clip{Path: destPath, CreatedAt: req.TriggeredAt, Duration: duration}
	f.logger.Info("clip written",
		zap.String("path", clip.Path),
		zap.Duration("duration", clip.Duration),
		zap.Int("segments", len(segments)),
		zap.Int("bytes", len(video)+len(audio)))
	return clip, nil
}

// SanitizeName replaces characters that are invalid in directory names on
// any supported platform with underscores.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
