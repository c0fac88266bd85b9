package infra

import (
	"bytes"
	"strings"
	"sync"
)

// ffmpegBin is the subprocess all capture, encode and mux stages share.
// Resolved through PATH; no bundling.
const ffmpegBin = "ffmpeg"

// stderrTailLimit bounds how much subprocess stderr gets attached to an
// error. ffmpeg is chatty when dying; the end of the output carries the
// actual reason.
const stderrTailLimit = 512

// stderrTail extracts the interesting end of captured subprocess stderr.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTailLimit {
		s = "..." + s[len(s)-stderrTailLimit:]
	}
	return s
}

// syncBuffer is a concurrency-safe stderr sink. The exec machinery copies
// stderr from its own goroutine while stream readers attach the tail to
// their errors, so the plain bytes.Buffer would race.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
