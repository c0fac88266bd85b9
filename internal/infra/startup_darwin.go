//go:build darwin

package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

const launchAgentLabel = "com.replayd.daemon"

// LaunchAgent plist template (runs as user). No KeepAlive: the daemon
// manages its own lifetime and the control application can stop it.
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>run</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>ProcessType</key>
    <string>Interactive</string>
</dict>
</plist>
`

type launchAgentConfig struct {
	Label          string
	ExecutablePath string
}

// LaunchAgentStartup registers the daemon as a per-user LaunchAgent.
// Register only writes the plist: the daemon is already running when it
// registers itself, so loading the agent immediately would spawn a second
// instance. The agent takes effect at the next login.
type LaunchAgentStartup struct {
	logger    *zap.Logger
	plistPath string
}

var _ domain.StartupManager = (*LaunchAgentStartup)(nil)

// NewStartupManager returns the launchd-backed startup manager.
func NewStartupManager(logger *zap.Logger) *LaunchAgentStartup {
	home, _ := os.UserHomeDir()
	return &LaunchAgentStartup{
		logger:    logger,
		plistPath: filepath.Join(home, "Library", "LaunchAgents", launchAgentLabel+".plist"),
	}
}

// Register writes the LaunchAgent plist pointing at execPath.
func (s *LaunchAgentStartup) Register(execPath string) error {
	content, err := renderLaunchAgent(execPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.plistPath), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents directory: %w", err)
	}
	if err := os.WriteFile(s.plistPath, content, 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}
	s.logger.Info("registered login item", zap.String("plist", s.plistPath))
	return nil
}

// Unregister unloads the agent if loaded and removes the plist. Missing
// registration is not an error.
func (s *LaunchAgentStartup) Unregister() error {
	exec.Command("launchctl", "unload", s.plistPath).Run()
	if err := os.Remove(s.plistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}

// IsRegistered reports whether the plist exists.
func (s *LaunchAgentStartup) IsRegistered() bool {
	_, err := os.Stat(s.plistPath)
	return err == nil
}

func renderLaunchAgent(execPath string) ([]byte, error) {
	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse plist template: %w", err)
	}
	var buf bytes.Buffer
	cfg := launchAgentConfig{Label: launchAgentLabel, ExecutablePath: execPath}
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("render plist template: %w", err)
	}
	return buf.Bytes(), nil
}
