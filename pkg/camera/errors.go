package camera

import (
	"errors"
	"fmt"
)

var (
	ErrReadFailure = errors.New("camera: read failed")
	ErrReleased    = errors.New("camera: session released")
	ErrConnected   = errors.New("camera: already connected")
)

// DeviceOpenError reports that the driver could not produce a usable handle.
// It is never fatal: the session stays disconnected and the next failed read
// triggers another attempt.
type DeviceOpenError struct {
	Locator string
	Err     error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("camera: open %s: %s", e.Locator, e.Err)
}

func (e *DeviceOpenError) Unwrap() error {
	return e.Err
}
