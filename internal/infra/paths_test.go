package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPaths_FileLocations verifies artifact paths hang off the data dir
func TestPaths_FileLocations(t *testing.T) {
	p := Paths{DataDir: filepath.Join("data", "replayd")}

	assert.Equal(t, filepath.Join("data", "replayd", "config.toml"), p.ConfigFile())
	assert.Equal(t, filepath.Join("data", "replayd", "status.toml"), p.StatusFile())
	assert.Equal(t, filepath.Join("data", "replayd", "replayd.log"), p.LogFile())
}

// TestPaths_EnsureDataDir verifies the data directory is created on demand
func TestPaths_EnsureDataDir(t *testing.T) {
	p := Paths{DataDir: filepath.Join(t.TempDir(), "nested", "replayd")}

	require.NoError(t, p.EnsureDataDir())

	info, err := os.Stat(p.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent on an existing directory.
	assert.NoError(t, p.EnsureDataDir())
}

// TestExpandEnv_UnixStyle verifies $VAR and ${VAR} expansion
func TestExpandEnv_UnixStyle(t *testing.T) {
	t.Setenv("REPLAYD_TEST_CLIPS", "/srv/clips")

	assert.Equal(t, "/srv/clips/game", ExpandEnv("$REPLAYD_TEST_CLIPS/game"))
	assert.Equal(t, "/srv/clips/game", ExpandEnv("${REPLAYD_TEST_CLIPS}/game"))
}

// TestExpandEnv_WindowsStyle verifies %VAR% expansion
func TestExpandEnv_WindowsStyle(t *testing.T) {
	t.Setenv("REPLAYD_TEST_PROFILE", "/home/kari")

	assert.Equal(t, "/home/kari/Videos", ExpandEnv("%REPLAYD_TEST_PROFILE%/Videos"))
}

// TestExpandEnv_UnsetVariable verifies unset references expand to empty
func TestExpandEnv_UnsetVariable(t *testing.T) {
	assert.Equal(t, "/Videos", ExpandEnv("%REPLAYD_TEST_DOES_NOT_EXIST%/Videos"))
}

// TestExpandHome verifies tilde expansion against the real home dir
func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, "Videos"), ExpandHome("~/Videos"))
	assert.Equal(t, "/absolute/path", ExpandHome("/absolute/path"))
	assert.Equal(t, "no~expansion", ExpandHome("no~expansion"))
}

// TestWriteFileAtomic verifies content lands intact and temp files are cleaned up
func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.toml")

	require.NoError(t, WriteFileAtomic(path, []byte(`state = "idle"`), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `state = "idle"`, string(data))

	// Overwrite must replace, not append.
	require.NoError(t, WriteFileAtomic(path, []byte(`state = "recording"`), 0o644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `state = "recording"`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files should not linger")
}
