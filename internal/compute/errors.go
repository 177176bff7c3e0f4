package compute

import (
	"errors"
	"fmt"
)

// Device failure kinds. Every one of them is fatal for whoever owns the
// buffers involved; nothing in this package retries.
var (
	// ErrDeviceInit indicates no compute-capable execution context could be established.
	ErrDeviceInit = errors.New("compute: device initialization failed")

	// ErrDeviceIO indicates a buffer allocation or host/device transfer failed.
	ErrDeviceIO = errors.New("compute: device buffer I/O failed")

	// ErrKernelExecution indicates a kernel dispatch or on-device compute failure.
	ErrKernelExecution = errors.New("compute: kernel execution failed")

	// ErrReleased indicates use of a device or buffer after Release.
	ErrReleased = errors.New("compute: use after release")
)

// DeviceError wraps a device failure with the operation that produced it.
// errors.Is matches both the Kind sentinel and the underlying cause.
type DeviceError struct {
	Device string
	Op     string
	Kind   error
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Device, e.Op, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func deviceErr(device, op string, kind, err error) error {
	return &DeviceError{Device: device, Op: op, Kind: kind, Err: err}
}
