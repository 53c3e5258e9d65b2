package capture

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource         = errors.New("capture: no source selected")
	ErrAlreadyCapturing = errors.New("capture: already capturing")
	ErrNotCapturing     = errors.New("capture: not capturing")
	ErrNoDisplays       = errors.New("capture: no active displays")
	ErrNoFrame          = errors.New("capture: no new frame")
	ErrUnsupported      = errors.New("capture: unsupported pixel format")
)

// PlatformError wraps a failure from the capture backend.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func platformErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Op: op, Err: err}
}
