//go:build darwin

package infra

import "strconv"

// grabArgs selects the AVFoundation grabber. Device "1:none" is the first
// screen with no audio device; audio runs through its own capture path.
func grabArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "avfoundation",
		"-framerate", strconv.Itoa(CaptureFPS),
		"-capture_cursor", "1",
		"-i", "1:none",
	}
}
