//go:build windows

package infra

import "strconv"

// grabArgs selects the GDI desktop grabber covering the whole virtual
// screen, cursor included.
func grabArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "gdigrab",
		"-framerate", strconv.Itoa(CaptureFPS),
		"-draw_mouse", "1",
		"-i", "desktop",
	}
}
