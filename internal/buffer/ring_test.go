package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrindstad/replayd/internal/domain"
)

func seg(seq uint64) *domain.Segment {
	return &domain.Segment{
		Seq:      seq,
		Start:    time.Unix(int64(seq), 0),
		Duration: time.Second,
		Video:    []byte{0, 0, 0, 1},
	}
}

func fill(r *Ring, from, to uint64) {
	for i := from; i <= to; i++ {
		r.Append(seg(i))
	}
}

// TestNew_ClampsCapacity verifies capacity clamping to [5,120]
func TestNew_ClampsCapacity(t *testing.T) {
	assert.Equal(t, MinCapacitySecs, New(1).Capacity())
	assert.Equal(t, MinCapacitySecs, New(-3).Capacity())
	assert.Equal(t, MaxCapacitySecs, New(500).Capacity())
	assert.Equal(t, 15, New(15).Capacity())
}

// TestAppend_EvictsOldest verifies synchronous eviction keeps the newest window
func TestAppend_EvictsOldest(t *testing.T) {
	r := New(5)
	fill(r, 0, 7) // 8 appends into capacity 5

	snap := r.Snapshot()
	require.Len(t, snap, 5)
	assert.Equal(t, uint64(3), snap[0].Seq)
	assert.Equal(t, uint64(7), snap[4].Seq)
}

// TestAppend_SequenceContiguous verifies snapshots hold a gapless run
func TestAppend_SequenceContiguous(t *testing.T) {
	r := New(10)
	fill(r, 0, 24)

	snap := r.Snapshot()
	require.Len(t, snap, 10)
	for i := 1; i < len(snap); i++ {
		assert.Equal(t, snap[i-1].Seq+1, snap[i].Seq, "sequence gap at index %d", i)
	}
}

// TestSnapshot_IsolatedFromLaterAppends verifies the copy-on-write handoff
func TestSnapshot_IsolatedFromLaterAppends(t *testing.T) {
	r := New(5)
	fill(r, 0, 4)

	snap := r.Snapshot()
	fill(r, 5, 9) // evicts everything snap refers to

	require.Len(t, snap, 5)
	assert.Equal(t, uint64(0), snap[0].Seq)
	assert.Equal(t, uint64(4), snap[4].Seq)
	assert.NotNil(t, snap[0].Video, "evicted segment data must stay intact for the snapshot")
}

// TestSnapshot_Empty verifies an empty ring snapshots to an empty slice
func TestSnapshot_Empty(t *testing.T) {
	r := New(5)
	assert.Empty(t, r.Snapshot())
}

// TestResize_ShrinkEvictsImmediately verifies shrink drops oldest right away
func TestResize_ShrinkEvictsImmediately(t *testing.T) {
	r := New(10)
	fill(r, 0, 9)

	r.Resize(6)

	assert.Equal(t, 6, r.Capacity())
	snap := r.Snapshot()
	require.Len(t, snap, 6)
	assert.Equal(t, uint64(4), snap[0].Seq)
	assert.Equal(t, uint64(9), snap[5].Seq)
}

// TestResize_GrowKeepsContents verifies grow raises the threshold only
func TestResize_GrowKeepsContents(t *testing.T) {
	r := New(5)
	fill(r, 0, 4)

	r.Resize(10)

	assert.Equal(t, 10, r.Capacity())
	assert.Equal(t, 5, r.Len())

	fill(r, 5, 9)
	assert.Equal(t, 10, r.Len())

	r.Append(seg(10))
	snap := r.Snapshot()
	require.Len(t, snap, 10)
	assert.Equal(t, uint64(1), snap[0].Seq)
}

// TestResize_Clamps verifies resize respects the capacity bounds
func TestResize_Clamps(t *testing.T) {
	r := New(15)
	r.Resize(200)
	assert.Equal(t, MaxCapacitySecs, r.Capacity())
	r.Resize(0)
	assert.Equal(t, MinCapacitySecs, r.Capacity())
}

// TestClear verifies discarding all contents
func TestClear(t *testing.T) {
	r := New(5)
	fill(r, 0, 4)

	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 5, r.Capacity(), "clear must not change capacity")
}

// TestDuration verifies total covered duration accounting
func TestDuration(t *testing.T) {
	r := New(10)
	assert.Equal(t, time.Duration(0), r.Duration())

	fill(r, 0, 2)
	assert.Equal(t, 3*time.Second, r.Duration())
}

// TestDuration_WithinOneSegmentOfCapacity verifies the covered-window
// invariant under continuous appends
func TestDuration_WithinOneSegmentOfCapacity(t *testing.T) {
	const capSecs = 7
	r := New(capSecs)
	fill(r, 0, 59) // one minute of 1s segments

	d := r.Duration()
	assert.GreaterOrEqual(t, d, time.Duration(capSecs)*time.Second)
	assert.Less(t, d, time.Duration(capSecs+1)*time.Second)
}

// TestConcurrentAppendAndSnapshot verifies snapshots never observe a torn state
func TestConcurrentAppendAndSnapshot(t *testing.T) {
	r := New(5)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := uint64(0); i < 500; i++ {
			r.Append(seg(i))
		}
	}()

	for i := 0; i < 100; i++ {
		snap := r.Snapshot()
		for j := 1; j < len(snap); j++ {
			assert.Equal(t, snap[j-1].Seq+1, snap[j].Seq)
		}
	}
	<-done
}
