package compute

import (
	"fmt"

	"go.uber.org/zap"
)

// Buffer is a float32 array resident in device memory. The host only reaches
// it through explicit Write and Read copies.
type Buffer interface {
	Len() int
	Write(src []float32) error
	Read(dst []float32) error
	Release()
}

// Device is an explicit execution context: memory plus a dispatch queue.
// A Device is owned by a single caller and is not safe for concurrent use.
type Device interface {
	Name() string
	Alloc(n int) (Buffer, error)

	// Dispatch runs k over lanes [0, n) and blocks until every lane has
	// finished writing.
	Dispatch(k *Kernel, args Args, n int) error

	Release()
}

// Options configures device creation.
type Options struct {
	// Workers is the CPU lane pool size; 0 means runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Names lists the device names accepted by Open.
func Names() []string {
	return []string{"auto", "cpu", "opengl"}
}

// Open creates the named device.
func Open(name string, opts Options) (Device, error) {
	switch name {
	case "", "auto":
		return AutoSelect(opts), nil
	case "cpu":
		return NewCPUDevice(opts), nil
	case "opengl":
		d, err := NewOpenGLDevice(opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, deviceErr(name, "open", ErrDeviceInit, fmt.Errorf("unknown device %q", name))
	}
}

// AutoSelect prefers the GPU and falls back to the CPU lane pool.
func AutoSelect(opts Options) Device {
	log := opts.logger()
	gl, err := NewOpenGLDevice(opts)
	if err == nil {
		return gl
	}
	log.Debug("opengl device unavailable, using cpu", zap.Error(err))
	return NewCPUDevice(opts)
}
