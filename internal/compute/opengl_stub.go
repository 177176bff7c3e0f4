//go:build !opengl

package compute

import "errors"

// OpenGLDevice is unavailable in builds without the opengl tag.
type OpenGLDevice struct{ Device }

func NewOpenGLDevice(opts Options) (*OpenGLDevice, error) {
	return nil, deviceErr("opengl", "init", ErrDeviceInit, errors.New("built without opengl support (use -tags opengl)"))
}
