//go:build !windows

package daemon

import "syscall"

// detachAttr puts the child in its own session so it survives the caller's
// terminal closing.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
