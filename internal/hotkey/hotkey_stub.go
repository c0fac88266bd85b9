//go:build !windows

package hotkey

import (
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// Listener is the non-Windows placeholder: key names still parse and bind so
// configuration errors surface identically, but no presses are ever
// delivered. Global key capture on other platforms needs a compositor or
// accessibility integration this daemon does not carry yet.
type Listener struct {
	binder
}

var _ domain.HotkeyBinder = (*Listener)(nil)

// NewListener returns an unstarted listener.
func NewListener(logger *zap.Logger) *Listener {
	return &Listener{binder: newBinder(logger)}
}

// Start logs that capture is unavailable. Never fails.
func (l *Listener) Start() error {
	l.logger.Warn("global hotkey capture is not supported on this platform; flush hotkey disabled")
	return nil
}

// Close releases nothing; present for interface symmetry with the
// platform-backed listener.
func (l *Listener) Close() {}
