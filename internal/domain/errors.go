package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a daemon failure. Every kind is recovered locally;
// none of them terminate the process.
type ErrorKind string

const (
	KindConfig       ErrorKind = "config"
	KindCapture      ErrorKind = "capture"
	KindEncode       ErrorKind = "encode"
	KindFlush        ErrorKind = "flush"
	KindProcessWatch ErrorKind = "procwatch"
)

// DaemonError wraps a failure with its taxonomy kind and the operation
// that produced it.
type DaemonError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DaemonError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *DaemonError) Unwrap() error {
	return e.Err
}

// NewConfigError reports a configuration parse/validation failure.
func NewConfigError(op string, err error) *DaemonError {
	return &DaemonError{Kind: KindConfig, Op: op, Err: err}
}

// NewCaptureError reports a capture session/device failure.
func NewCaptureError(op string, err error) *DaemonError {
	return &DaemonError{Kind: KindCapture, Op: op, Err: err}
}

// NewEncodeError reports an encoder session failure.
func NewEncodeError(op string, err error) *DaemonError {
	return &DaemonError{Kind: KindEncode, Op: op, Err: err}
}

// NewFlushError reports a failure writing an output clip.
func NewFlushError(op string, err error) *DaemonError {
	return &DaemonError{Kind: KindFlush, Op: op, Err: err}
}

// NewProcessWatchError reports a process enumeration failure.
func NewProcessWatchError(op string, err error) *DaemonError {
	return &DaemonError{Kind: KindProcessWatch, Op: op, Err: err}
}

// KindOf returns the taxonomy kind of err, unwrapping as needed.
// Returns "" when err carries no DaemonError.
func KindOf(err error) ErrorKind {
	var de *DaemonError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
