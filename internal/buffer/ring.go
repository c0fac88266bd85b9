// Package buffer implements the bounded segment store: a time-ordered ring
// of sealed segments covering the most recent configured window.
package buffer

import (
	"sync"
	"time"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Capacity bounds in seconds. One segment covers roughly one second, so
// capacity is expressed and enforced as a segment count.
const (
	MinCapacitySecs = 5
	MaxCapacitySecs = 120
)

// Ring is the bounded segment store. A single mutex guards all access:
// eviction happens synchronously with the append that overflows, snapshots
// copy the slice header under the lock (segments are immutable and shared),
// and resize applies atomically with respect to both.
type Ring struct {
	mu       sync.Mutex
	segments []*domain.Segment
	capacity int
}

// New creates a ring holding at most capacitySecs seconds of segments.
// Out-of-range capacities are clamped to [MinCapacitySecs, MaxCapacitySecs].
func New(capacitySecs int) *Ring {
	c := clampCapacity(capacitySecs)
	return &Ring{
		segments: make([]*domain.Segment, 0, c),
		capacity: c,
	}
}

func clampCapacity(secs int) int {
	if secs < MinCapacitySecs {
		return MinCapacitySecs
	}
	if secs > MaxCapacitySecs {
		return MaxCapacitySecs
	}
	return secs
}

// Append adds a sealed segment, evicting the oldest entries in the same
// critical section if the ring would otherwise exceed capacity.
func (r *Ring) Append(seg *domain.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.segments) >= r.capacity {
		r.segments[0] = nil // release for GC
		r.segments = r.segments[1:]
	}
	r.segments = append(r.segments, seg)
}

// Snapshot returns a prefix-consistent, time-ordered copy of the current
// contents. The copy shares segment references with the live ring; since
// segments are immutable, later appends and evictions cannot corrupt an
// in-progress flush.
func (r *Ring) Snapshot() []*domain.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make([]*domain.Segment, len(r.segments))
	copy(snap, r.segments)
	return snap
}

// Resize changes the capacity. Shrinking evicts the oldest segments
// immediately; growing only raises the eviction threshold and lets the
// ring fill naturally.
func (r *Ring) Resize(capacitySecs int) {
	c := clampCapacity(capacitySecs)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.capacity = c
	for len(r.segments) > r.capacity {
		r.segments[0] = nil
		r.segments = r.segments[1:]
	}
}

// Clear discards all segments. Used at the start of every recording
// session so sequence numbering restarts from an empty store.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.segments {
		r.segments[i] = nil
	}
	r.segments = r.segments[:0]
}

// Len returns the number of buffered segments.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.segments)
}

// Capacity returns the current eviction threshold in segments.
func (r *Ring) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity
}

// Duration returns the total covered duration of all buffered segments.
func (r *Ring) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	for _, s := range r.segments {
		total += s.Duration
	}
	return total
}
