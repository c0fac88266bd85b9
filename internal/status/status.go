// Package status maintains the daemon's externally visible state and
// publishes it for the control application to poll. The daemon is the only
// writer of the status file; everything else treats it as read-only.
package status

import (
	"sync"
	"time"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Status is the TOML document written to status.toml. Optional fields are
// omitted rather than written empty so consumers can distinguish "never
// happened" from "happened with empty value".
type Status struct {
	State             domain.DaemonState `toml:"state"`
	ActiveApplication string             `toml:"active_application,omitempty"`
	LastClipPath      string             `toml:"last_clip_path,omitempty"`
	LastClipTimestamp string             `toml:"last_clip_timestamp,omitempty"`
	Error             string             `toml:"error,omitempty"`
	Version           string             `toml:"version"`
}

// Tracker holds the current status. The daemon controller is the single
// writer; the publisher and CLI read snapshots.
type Tracker struct {
	mu  sync.Mutex
	cur Status
}

// NewTracker returns a tracker starting in the idle state.
func NewTracker(version string) *Tracker {
	return &Tracker{cur: Status{State: domain.StateIdle, Version: version}}
}

// SetState records a lifecycle transition.
func (t *Tracker) SetState(state domain.DaemonState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.State = state
}

// SetActiveApplication records the display name of the matched application.
// An empty name clears the field.
func (t *Tracker) SetActiveApplication(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.ActiveApplication = name
}

// SetClip records a successfully written clip and clears any prior error.
func (t *Tracker) SetClip(clip domain.Clip) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.LastClipPath = clip.Path
	t.cur.LastClipTimestamp = clip.CreatedAt.Format(time.RFC3339)
	t.cur.Error = ""
}

// SetError records the most recent failure. A nil error clears the field.
func (t *Tracker) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.cur.Error = ""
		return
	}
	t.cur.Error = err.Error()
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
