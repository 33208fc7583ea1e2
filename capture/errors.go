package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors
var (
	ErrAlreadyRecording = errors.New("capture: a recording is already in progress")
	ErrEmptyRecording   = errors.New("capture: recording is empty")
)

// DeviceAccessError is returned when the device can't be acquired, whether permission was denied
// or no device exists
type DeviceAccessError struct {
	Device string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("capture: accessing device %s failed: %s", e.Device, e.Err)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }
