// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// DaemonState is the top-level lifecycle state of the daemon.
type DaemonState string

const (
	StateIdle      DaemonState = "idle"
	StateRecording DaemonState = "recording"
	StateFlushing  DaemonState = "flushing"
)

// ProcessInfo is a single entry from an OS process enumeration.
type ProcessInfo struct {
	PID  int32
	Name string // executable filename, not full path
}

// ApplicationMatch identifies a configured application found running.
type ApplicationMatch struct {
	DisplayName    string
	ExecutableName string
	PID            int32
}

// EffectiveSettings is the per-application resolved configuration:
// override-if-present else global. Always derived, never stored.
type EffectiveSettings struct {
	BufferLengthSecs int
	Hotkey           string
}

// RawFrame is one uncompressed BGRA video frame from the capture source.
type RawFrame struct {
	Data      []byte
	Timestamp time.Time
}

// PCMChunk is a block of interleaved float32 little-endian audio samples.
type PCMChunk struct {
	Data      []byte
	Samples   int // sample frames per channel
	Timestamp time.Time
}

// VideoUnit is one encoded H.264 access unit in Annex-B byte form.
// Keyframe units are preceded by SPS/PPS so they are independently decodable.
type VideoUnit struct {
	Data      []byte
	Keyframe  bool
	Timestamp time.Time
}

// AudioUnit is one encoded AAC frame in ADTS byte form (self-delimiting).
type AudioUnit struct {
	Data      []byte
	Samples   int
	Timestamp time.Time
}

// Segment is a sealed, immutable chunk of roughly one second of encoded
// audio+video. It is the unit of buffering, eviction and flushing.
// Segments concatenate into valid elementary streams by construction.
type Segment struct {
	Seq      uint64
	Start    time.Time
	Duration time.Duration
	Video    []byte // complete Annex-B access units, first one an IDR
	Audio    []byte // complete ADTS frames, may be empty if audio stalled
	Frames   int
}

// Size returns the total encoded payload size in bytes.
func (s *Segment) Size() int {
	return len(s.Video) + len(s.Audio)
}

// Clip is a finalized output file produced by one successful flush.
// Never mutated after creation.
type Clip struct {
	Path      string
	CreatedAt time.Time
	Duration  time.Duration
}
