//go:build linux

package infra

import (
	"os"
	"strconv"
)

// grabArgs selects the X11 grabber on the session display. Wayland sessions
// need a portal-backed grabber instead, but XWayland keeps this working for
// most desktops.
func grabArgs() []string {
	display := os.Getenv("DISPLAY")
	if display == "" {
		display = ":0.0"
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "x11grab",
		"-framerate", strconv.Itoa(CaptureFPS),
		"-i", display,
	}
}
