package anpr

import (
	"errors"
	"fmt"
)

// CaptureErrorKind classifies transient frame-source failures.
type CaptureErrorKind string

const (
	// DeviceUnavailable means the device could not be opened or disappeared.
	DeviceUnavailable CaptureErrorKind = "device_unavailable"
	// Timeout means a read did not complete within the bounded read timeout.
	Timeout CaptureErrorKind = "timeout"
	// DecodeFailure means the device produced data that could not be decoded
	// into a well-formed frame.
	DecodeFailure CaptureErrorKind = "decode_failure"
)

// CaptureError is a transient frame-source failure. The capture loop retries
// these with backoff instead of terminating.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture error: %s", e.Kind)
	}
	return fmt.Sprintf("capture error: %s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// NewCaptureError wraps err as a CaptureError of the given kind.
func NewCaptureError(kind CaptureErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}

// AsCaptureError extracts a *CaptureError from err's chain, if present.
func AsCaptureError(err error) (*CaptureError, bool) {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
