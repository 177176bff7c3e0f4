package compute

// DefaultGroupSize is the work group size used when a kernel does not set one.
const DefaultGroupSize = 256

// LaneFunc computes lanes [lo, hi) of a kernel on the host. bufs holds the
// device-resident arrays in argument order and params the scalar uniforms.
// Lanes must only touch their own elements.
type LaneFunc func(lo, hi int, bufs [][]float32, params []float32)

// Kernel is one data-parallel program in every rendition a device may need.
type Kernel struct {
	Name string

	// Lanes runs on the CPU device.
	Lanes LaneFunc

	// GLSL is a #version 430 compute shader. Buffers bind to SSBO slots in
	// argument order, params to `uniform float params[]` and the lane count
	// to `uniform uint count`.
	GLSL      string
	GroupSize int
}

func (k *Kernel) groupSize() int {
	if k.GroupSize > 0 {
		return k.GroupSize
	}
	return DefaultGroupSize
}

// Args binds buffers and uniforms for a single dispatch.
type Args struct {
	Buffers []Buffer
	Params  []float32
}
