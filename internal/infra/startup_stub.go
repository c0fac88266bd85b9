//go:build !windows && !darwin

package infra

import (
	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

// NoopStartup is used where no per-user autostart mechanism is wired yet.
// TODO: write a systemd user unit on Linux.
type NoopStartup struct {
	logger *zap.Logger
}

var _ domain.StartupManager = (*NoopStartup)(nil)

// NewStartupManager returns the no-op startup manager.
func NewStartupManager(logger *zap.Logger) *NoopStartup {
	return &NoopStartup{logger: logger}
}

// Register logs that registration is unavailable. Never fails: startup
// registration is best-effort on every platform.
func (s *NoopStartup) Register(execPath string) error {
	s.logger.Info("startup registration not supported on this platform")
	return nil
}

// Unregister is a no-op.
func (s *NoopStartup) Unregister() error { return nil }

// IsRegistered always reports false.
func (s *NoopStartup) IsRegistered() bool { return false }
