package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDaemonError_Error verifies message formatting with and without a cause
func TestDaemonError_Error(t *testing.T) {
	withCause := NewFlushError("write clip", errors.New("disk full"))
	assert.Equal(t, "flush: write clip: disk full", withCause.Error())

	withoutCause := &DaemonError{Kind: KindCapture, Op: "open device"}
	assert.Equal(t, "capture: open device", withoutCause.Error())
}

// TestDaemonError_Unwrap verifies errors.Is sees the wrapped cause
func TestDaemonError_Unwrap(t *testing.T) {
	cause := errors.New("session lost")
	err := NewCaptureError("read frame", cause)

	assert.True(t, errors.Is(err, cause))
}

// TestKindOf verifies kind extraction through wrapping layers
func TestKindOf(t *testing.T) {
	err := NewEncodeError("start encoder", errors.New("no encoder"))
	wrapped := fmt.Errorf("session failed: %w", err)

	assert.Equal(t, KindEncode, KindOf(wrapped))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

// TestKindOf_AllConstructors verifies each constructor tags its kind
func TestKindOf_AllConstructors(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, KindConfig, KindOf(NewConfigError("parse", cause)))
	assert.Equal(t, KindCapture, KindOf(NewCaptureError("open", cause)))
	assert.Equal(t, KindEncode, KindOf(NewEncodeError("start", cause)))
	assert.Equal(t, KindFlush, KindOf(NewFlushError("mux", cause)))
	assert.Equal(t, KindProcessWatch, KindOf(NewProcessWatchError("enumerate", cause)))
}
