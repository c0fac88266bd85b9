//go:build windows

package daemon

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// detachAttr starts the child without a console and outside the caller's
// process group so console signals never reach it.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
}
