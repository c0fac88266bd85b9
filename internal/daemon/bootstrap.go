package daemon

import (
	"fmt"
	"os"
	"os/exec"
)

// StartDetached spawns `replayd run` detached from the caller's terminal
// and returns the child PID. The child outlives the caller; stopping it is
// an OS-level process operation. dataDir, when non-empty, is forwarded so
// the daemon uses the same data directory as the caller.
func StartDetached(dataDir string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(executable, buildRunArgs(dataDir)...)
	cmd.SysProcAttr = detachAttr()

	// Fully detached: no inherited stdio.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn daemon: %w", err)
	}
	return cmd.Process.Pid, nil
}

func buildRunArgs(dataDir string) []string {
	args := []string{"run"}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	return args
}
