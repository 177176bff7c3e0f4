// Package compute provides explicit execution contexts for data-parallel kernels.
//
// A [Device] owns device-resident memory ([Buffer]) and a dispatch queue.
// Nothing here is global: callers open a device, hand it to whatever owns
// the simulation state and release it when done.
//
//   - CPU: a fixed pool of worker goroutines, one contiguous lane chunk each
//   - OpenGL: GLSL compute shaders over SSBOs (build with -tags opengl)
//
// # Usage
//
//	dev, err := compute.Open("cpu", compute.Options{})
//	buf, _ := dev.Alloc(n)
//	_ = buf.Write(host)
//	err = dev.Dispatch(kernel, compute.Args{Buffers: []compute.Buffer{buf}}, n)
//
// Dispatch is a full barrier. Failures are reported as [*DeviceError] values
// matching [ErrDeviceInit], [ErrDeviceIO] or [ErrKernelExecution].
package compute
