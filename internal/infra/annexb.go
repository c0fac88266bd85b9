package infra

import "github.com/mgrindstad/replayd/internal/domain"

// H.264 NAL unit types the splitter cares about.
const (
	nalSliceNonIDR = 1
	nalSliceIDR    = 5
)

// AnnexBSplitter reassembles an H.264 Annex-B byte stream into access units,
// one per coded picture. Start codes are preserved so the collected units can
// be concatenated back into a valid stream.
//
// Non-VCL units (SPS, PPS, SEI, AUD) precede the picture they describe, so
// they are held back and attached to the next access unit. A picture boundary
// is detected when a slice with first_mb_in_slice == 0 arrives, which in
// Exp-Golomb coding means the first payload bit is set.
//
// Emitted units carry a zero Timestamp; the caller stamps them.
type AnnexBSplitter struct {
	buf     []byte
	current [][]byte
	leading [][]byte
	sawVCL  bool
	idr     bool
}

// NewAnnexBSplitter creates an empty splitter.
func NewAnnexBSplitter() *AnnexBSplitter {
	return &AnnexBSplitter{}
}

// Write consumes the next chunk of the byte stream and returns any access
// units completed by it. A trailing partial NAL unit stays buffered until
// more bytes arrive.
func (s *AnnexBSplitter) Write(p []byte) []domain.VideoUnit {
	s.buf = append(s.buf, p...)

	var units []domain.VideoUnit
	for {
		start := findStartCode(s.buf, 0)
		if start < 0 {
			// No start code yet; nothing before one can be a NAL unit.
			if len(s.buf) > 2 {
				s.buf = s.buf[len(s.buf)-2:]
			}
			break
		}
		next := findStartCode(s.buf, start+3)
		if next < 0 {
			// Last NAL unit is still incomplete.
			s.buf = s.buf[start:]
			break
		}
		nal := s.buf[start:next]
		s.buf = s.buf[next:]
		if unit := s.consumeNAL(nal); unit != nil {
			units = append(units, *unit)
		}
	}
	return units
}

// Flush emits the in-progress access unit built from complete NAL units.
// An incomplete trailing NAL unit is discarded. Call once, at stream end.
func (s *AnnexBSplitter) Flush() []domain.VideoUnit {
	s.buf = nil
	if !s.sawVCL {
		s.current = nil
		s.leading = nil
		return nil
	}
	unit := s.sealCurrent()
	return []domain.VideoUnit{unit}
}

// consumeNAL folds one complete NAL unit (start code included) into the
// splitter state, returning a finished access unit when the NAL opens the
// next picture.
func (s *AnnexBSplitter) consumeNAL(nal []byte) *domain.VideoUnit {
	header, payload, ok := splitNAL(nal)
	if !ok {
		return nil
	}
	nalType := header & 0x1F

	if nalType < nalSliceNonIDR || nalType > nalSliceIDR {
		s.leading = append(s.leading, nal)
		return nil
	}

	newPicture := len(payload) > 0 && payload[0]&0x80 != 0

	var finished *domain.VideoUnit
	if newPicture && s.sawVCL {
		unit := s.sealCurrent()
		finished = &unit
	}

	if len(s.leading) > 0 {
		s.current = append(s.current, s.leading...)
		s.leading = nil
	}
	s.current = append(s.current, nal)
	s.sawVCL = true
	if nalType == nalSliceIDR {
		s.idr = true
	}
	return finished
}

// sealCurrent packages the accumulated NAL units into one access unit and
// resets the picture state.
func (s *AnnexBSplitter) sealCurrent() domain.VideoUnit {
	size := 0
	for _, nal := range s.current {
		size += len(nal)
	}
	data := make([]byte, 0, size)
	for _, nal := range s.current {
		data = append(data, nal...)
	}
	unit := domain.VideoUnit{Data: data, Keyframe: s.idr}
	s.current = nil
	s.sawVCL = false
	s.idr = false
	return unit
}

// splitNAL strips the start code off a NAL unit, returning the header byte
// and the payload after it.
func splitNAL(nal []byte) (header byte, payload []byte, ok bool) {
	i := 0
	for i < len(nal) && nal[i] == 0 {
		i++
	}
	if i >= len(nal) || nal[i] != 1 || i+1 >= len(nal) {
		return 0, nil, false
	}
	return nal[i+1], nal[i+2:], true
}

// findStartCode returns the index of the next 00 00 01 pattern at or after
// from, or -1. A leading zero of a four-byte start code stays attached to the
// preceding NAL unit, which Annex B permits as trailing_zero_8bits.
func findStartCode(buf []byte, from int) int {
	for i := from; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			return i
		}
	}
	return -1
}
