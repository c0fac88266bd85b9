package domain

import (
	"context"
	"time"
)

// ProcessScanner enumerates running OS processes.
// Implementation: uses gopsutil for cross-platform support.
type ProcessScanner interface {
	// Snapshot returns the current process list. A single failed entry is
	// skipped, not an error; only a failed enumeration returns one.
	Snapshot() ([]ProcessInfo, error)
}

// VideoSource produces raw display frames at a fixed cadence.
// The returned channel is owned by the source and closed when the capture
// session ends (deliberately via Stop/ctx or by failure). The source never
// blocks on a slow consumer: when its channel is full the oldest queued
// frame is dropped to make room for the newest.
type VideoSource interface {
	Start(ctx context.Context) (<-chan RawFrame, error)

	// Stop tears the session down and returns the terminal error, if the
	// session ended by failure rather than by Stop/cancellation. Idempotent.
	Stop() error
}

// AudioSource produces raw PCM chunks with the same channel ownership and
// drop-oldest overflow policy as VideoSource.
type AudioSource interface {
	Start(ctx context.Context) (<-chan PCMChunk, error)
	Stop() error
}

// VideoEncoder consumes raw frames and produces H.264 access units.
// The output channel closes when the input closes or the encoder dies.
type VideoEncoder interface {
	Start(ctx context.Context, frames <-chan RawFrame) (<-chan VideoUnit, error)
	Stop() error
}

// AudioEncoder consumes PCM chunks and produces AAC ADTS frames.
type AudioEncoder interface {
	Start(ctx context.Context, chunks <-chan PCMChunk) (<-chan AudioUnit, error)
	Stop() error
}

// ClipMuxer writes one playable MP4 from concatenated elementary streams.
// audio may be empty, in which case a video-only clip is produced.
type ClipMuxer interface {
	Mux(ctx context.Context, video, audio []byte, destPath string) error
}

// HotkeyBinder is a system-wide key observer. The bound key can be swapped
// at runtime without reinstalling the OS hook. Presses are delivered on a
// non-blocking channel; the observer never performs work beyond the send.
type HotkeyBinder interface {
	// Bind arms the listener for the named key. An unrecognized name
	// disables the listener and returns an error; the daemon keeps running.
	Bind(name string) error

	// Unbind disables the listener without uninstalling the hook.
	Unbind()

	// Presses delivers the wall-clock time of each hotkey press.
	Presses() <-chan time.Time
}

// StartupManager registers the daemon to run at user login.
type StartupManager interface {
	// Register installs the login entry for the given executable path.
	Register(execPath string) error

	// Unregister removes the login entry. Not an error if absent.
	Unregister() error

	// IsRegistered checks if the login entry is present.
	IsRegistered() bool
}
