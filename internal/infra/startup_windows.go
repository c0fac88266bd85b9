//go:build windows

package infra

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/registry"

	"github.com/mgrindstad/replayd/internal/domain"
)

const (
	runKeyPath   = `Software\Microsoft\Windows\CurrentVersion\Run`
	runValueName = "replayd"
)

// RunKeyStartup registers the daemon under the per-user Run key so it
// starts at login without elevation.
type RunKeyStartup struct {
	logger *zap.Logger
}

var _ domain.StartupManager = (*RunKeyStartup)(nil)

// NewStartupManager returns the registry-backed startup manager.
func NewStartupManager(logger *zap.Logger) *RunKeyStartup {
	return &RunKeyStartup{logger: logger}
}

// Register points the Run value at execPath. Overwrites any previous value,
// which keeps the entry current across binary moves.
func (s *RunKeyStartup) Register(execPath string) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("open Run key: %w", err)
	}
	defer key.Close()

	command := fmt.Sprintf(`"%s" run`, execPath)
	if err := key.SetStringValue(runValueName, command); err != nil {
		return fmt.Errorf("set Run value: %w", err)
	}
	s.logger.Info("registered startup entry", zap.String("command", command))
	return nil
}

// Unregister removes the Run value. Missing registration is not an error.
func (s *RunKeyStartup) Unregister() error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open Run key: %w", err)
	}
	defer key.Close()

	if err := key.DeleteValue(runValueName); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("delete Run value: %w", err)
	}
	return nil
}

// IsRegistered reports whether the Run value exists.
func (s *RunKeyStartup) IsRegistered() bool {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return false
	}
	defer key.Close()

	_, _, err = key.GetStringValue(runValueName)
	return err == nil
}
