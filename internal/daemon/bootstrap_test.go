package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestBuildRunArgs verifies the spawned daemon inherits the caller's data
// directory override, and only that.
func TestBuildRunArgs(t *testing.T) {
	assert.Equal(t, []string{"run"}, buildRunArgs(""))
	assert.Equal(t,
		[]string{"run", "--data-dir", "/tmp/replayd-test"},
		buildRunArgs("/tmp/replayd-test"))
}

// TestDetachAttr verifies every platform provides detach attributes; the
// zero value would leave the child tied to the caller's terminal.
func TestDetachAttr(t *testing.T) {
	assert.NotNil(t, detachAttr())
}
