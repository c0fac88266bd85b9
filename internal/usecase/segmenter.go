// Package usecase contains application business logic.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// DefaultAudioCatchup bounds how long a sealing segment waits for the audio
// stream to deliver its first frame. Audio lags video through the encoder
// pipeline; waiting briefly keeps segments from sealing silent when sound is
// actually present, without ever stalling video for long.
const DefaultAudioCatchup = 250 * time.Millisecond

// SegmentSink receives sealed segments. *buffer.Ring satisfies it.
type SegmentSink interface {
	Append(*domain.Segment)
}

// Segmenter groups encoded units into roughly one-second segments, cutting
// at keyframe boundaries so every segment starts independently decodable.
// It is single-use: one Run per capture session.
type Segmenter struct {
	sink       SegmentSink
	fps        int
	audioWait  time.Duration
	logger     *zap.Logger
	seq        uint64
	video      []byte
	audio      []byte
	frames     int
	start      time.Time
	warnedLead bool
}

// NewSegmenter creates a segmenter sealing into sink. fps is the nominal
// capture rate used to derive segment durations from frame counts.
func NewSegmenter(sink SegmentSink, fps int, logger *zap.Logger) *Segmenter {
	return &Segmenter{
		sink:      sink,
		fps:       fps,
		audioWait: DefaultAudioCatchup,
		logger:    logger,
	}
}

// Run consumes both encoded streams until the video channel closes or ctx is
// canceled. audio may be nil for a video-only session. When video closes the
// pending partial segment is sealed; on cancellation it is discarded.
func (s *Segmenter) Run(ctx context.Context, video <-chan domain.VideoUnit, audio <-chan domain.AudioUnit) {
	for {
		select {
		case <-ctx.Done():
			return
		case unit, ok := <-video:
			if !ok {
				s.sealPending(ctx, audio)
				return
			}
			s.consumeVideo(ctx, audio, unit)
		case unit, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			s.audio = append(s.audio, unit.Data...)
		}
	}
}

// consumeVideo accumulates one access unit, sealing the pending segment
// first when the unit opens a new GOP.
func (s *Segmenter) consumeVideo(ctx context.Context, audio <-chan domain.AudioUnit, unit domain.VideoUnit) {
	if unit.Keyframe && s.frames > 0 {
		s.seal(ctx, audio)
	}
	if s.frames == 0 {
		if !unit.Keyframe {
			// Units before the first keyframe cannot anchor a segment.
			if !s.warnedLead {
				s.logger.Debug("discarding video units ahead of first keyframe")
				s.warnedLead = true
			}
			return
		}
		s.start = unit.Timestamp
	}
	s.video = append(s.video, unit.Data...)
	s.frames++
}

// sealPending flushes whatever is accumulated as a final short segment.
func (s *Segmenter) sealPending(ctx context.Context, audio <-chan domain.AudioUnit) {
	if s.frames == 0 {
		return
	}
	if audio != nil {
		s.drainAudio(audio)
	}
	s.seal(ctx, audio)
}

func (s *Segmenter) seal(ctx context.Context, audio <-chan domain.AudioUnit) {
	if len(s.audio) == 0 && audio != nil {
		s.awaitAudio(ctx, audio)
	}
	seg := &domain.Segment{
		Seq:      s.seq,
		Start:    s.start,
		Duration: time.Duration(s.frames) * time.Second / time.Duration(s.fps),
		Video:    s.video,
		Audio:    s.audio,
		Frames:   s.frames,
	}
	s.seq++
	s.video = nil
	s.audio = nil
	s.frames = 0
	s.sink.Append(seg)
	s.logger.Debug("segment sealed",
		zap.Uint64("seq", seg.Seq),
		zap.Int("frames", seg.Frames),
		zap.Int("bytes", seg.Size()),
		zap.Duration("duration", seg.Duration))
}

// awaitAudio blocks up to audioWait for one audio frame so the segment about
// to seal is not needlessly silent, then drains whatever else is queued.
func (s *Segmenter) awaitAudio(ctx context.Context, audio <-chan domain.AudioUnit) {
	timer := time.NewTimer(s.audioWait)
	defer timer.Stop()
	select {
	case unit, ok := <-audio:
		if !ok {
			return
		}
		s.audio = append(s.audio, unit.Data...)
		s.drainAudio(audio)
	case <-timer.C:
	case <-ctx.Done():
	}
}

// drainAudio attaches queued audio frames without blocking.
func (s *Segmenter) drainAudio(audio <-chan domain.AudioUnit) {
	for {
		select {
		case unit, ok := <-audio:
			if !ok {
				return
			}
			s.audio = append(s.audio, unit.Data...)
		default:
			return
		}
	}
}
