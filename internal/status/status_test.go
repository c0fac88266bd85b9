package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mgrindstad/replayd/internal/domain"
)

// TestNewTracker_StartsIdle verifies the initial snapshot
func TestNewTracker_StartsIdle(t *testing.T) {
	tr := NewTracker("1.2.3")
	snap := tr.Snapshot()

	assert.Equal(t, domain.StateIdle, snap.State)
	assert.Equal(t, "1.2.3", snap.Version)
	assert.Empty(t, snap.ActiveApplication)
	assert.Empty(t, snap.LastClipPath)
	assert.Empty(t, snap.Error)
}

// TestTracker_StateAndApplication verifies lifecycle mutations are visible
func TestTracker_StateAndApplication(t *testing.T) {
	tr := NewTracker("dev")

	tr.SetState(domain.StateRecording)
	tr.SetActiveApplication("My Game")
	snap := tr.Snapshot()
	assert.Equal(t, domain.StateRecording, snap.State)
	assert.Equal(t, "My Game", snap.ActiveApplication)

	tr.SetState(domain.StateIdle)
	tr.SetActiveApplication("")
	snap = tr.Snapshot()
	assert.Equal(t, domain.StateIdle, snap.State)
	assert.Empty(t, snap.ActiveApplication)
}

// TestTracker_SetClip verifies clip bookkeeping and error clearing
func TestTracker_SetClip(t *testing.T) {
	tr := NewTracker("dev")
	tr.SetError(assert.AnError)

	created := time.Date(2025, 1, 2, 15, 4, 5, 0, time.Local)
	tr.SetClip(domain.Clip{
		Path:      "/clips/My Game/2025-01-02_15-04-05.mp4",
		CreatedAt: created,
		Duration:  15 * time.Second,
	})

	snap := tr.Snapshot()
	assert.Equal(t, "/clips/My Game/2025-01-02_15-04-05.mp4", snap.LastClipPath)
	assert.Equal(t, created.Format(time.RFC3339), snap.LastClipTimestamp)
	assert.Empty(t, snap.Error, "a successful clip clears the previous error")
}

// TestTracker_SetError verifies error set and clear round-trip
func TestTracker_SetError(t *testing.T) {
	tr := NewTracker("dev")

	tr.SetError(assert.AnError)
	assert.Equal(t, assert.AnError.Error(), tr.Snapshot().Error)

	tr.SetError(nil)
	assert.Empty(t, tr.Snapshot().Error)
}

// TestTracker_SnapshotIsCopy verifies mutations after Snapshot don't leak in
func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewTracker("dev")
	snap := tr.Snapshot()

	tr.SetState(domain.StateFlushing)
	assert.Equal(t, domain.StateIdle, snap.State)
}
