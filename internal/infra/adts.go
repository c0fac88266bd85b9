package infra

import "github.com/mgrindstad/replayd/internal/domain"

const (
	adtsHeaderLen       = 7    // without CRC; 9 with
	adtsSamplesPerBlock = 1024 // AAC-LC raw data block
)

// ADTSParser reframes an AAC ADTS byte stream into whole frames. ADTS frames
// are self-delimiting (the header carries the frame length), so unlike the
// Annex-B splitter no lookahead is needed and there is nothing to flush: a
// trailing partial frame at stream end is simply dropped.
//
// Emitted units carry a zero Timestamp; the caller stamps them.
type ADTSParser struct {
	buf []byte
}

// NewADTSParser creates an empty parser.
func NewADTSParser() *ADTSParser {
	return &ADTSParser{}
}

// Write consumes the next chunk of the byte stream and returns the frames
// completed by it. Bytes that do not start with a valid sync word are
// skipped until one is found, so the parser recovers from mid-stream joins
// and corruption.
func (p *ADTSParser) Write(b []byte) []domain.AudioUnit {
	p.buf = append(p.buf, b...)

	var units []domain.AudioUnit
	for {
		p.resync()
		if len(p.buf) < adtsHeaderLen {
			break
		}

		frameLen := adtsFrameLength(p.buf)
		if frameLen < adtsHeaderLen {
			// Sync word by coincidence; step past it and rescan.
			p.buf = p.buf[1:]
			continue
		}
		if len(p.buf) < frameLen {
			break
		}

		frame := make([]byte, frameLen)
		copy(frame, p.buf[:frameLen])
		p.buf = p.buf[frameLen:]

		blocks := int(frame[6]&0x03) + 1
		units = append(units, domain.AudioUnit{
			Data:    frame,
			Samples: blocks * adtsSamplesPerBlock,
		})
	}
	return units
}

// resync discards bytes until the buffer starts with an ADTS sync word
// (twelve set bits) or runs out.
func (p *ADTSParser) resync() {
	for len(p.buf) >= 2 && !(p.buf[0] == 0xFF && p.buf[1]&0xF0 == 0xF0) {
		p.buf = p.buf[1:]
	}
}

// adtsFrameLength reads the 13-bit frame length field, which counts the
// header bytes as well as the payload.
func adtsFrameLength(h []byte) int {
	return int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5])>>5
}
