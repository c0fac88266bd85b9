package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Paths locates the daemon's on-disk artifacts under a single data directory.
type Paths struct {
	DataDir string
}

// DefaultPaths resolves the per-user data directory.
func DefaultPaths() (Paths, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve user config dir: %w", err)
	}
	return Paths{DataDir: filepath.Join(base, "replayd")}, nil
}

// ConfigFile returns the path of the daemon configuration file.
func (p Paths) ConfigFile() string {
	return filepath.Join(p.DataDir, "config.toml")
}

// StatusFile returns the path of the published status file.
func (p Paths) StatusFile() string {
	return filepath.Join(p.DataDir, "status.toml")
}

// LogFile returns the path of the daemon log file.
func (p Paths) LogFile() string {
	return filepath.Join(p.DataDir, "replayd.log")
}

// EnsureDataDir creates the data directory if it does not exist.
func (p Paths) EnsureDataDir() error {
	return os.MkdirAll(p.DataDir, 0o755)
}

var windowsEnvPattern = regexp.MustCompile(`%([^%]+)%`)

// ExpandEnv expands ~, $VAR, ${VAR} and %VAR% references in a path.
// Unset variables expand to the empty string, matching os.ExpandEnv.
func ExpandEnv(path string) string {
	expanded := windowsEnvPattern.ReplaceAllStringFunc(path, func(match string) string {
		name := match[1 : len(match)-1]
		return os.Getenv(name)
	})
	expanded = os.ExpandEnv(expanded)
	return ExpandHome(expanded)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// WriteFileAtomic writes data to path via a temp file in the same directory,
// syncing before the rename so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
