//go:build opengl

package compute

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-gl/gl/v4.3-core/gl"
	"go.uber.org/zap"
)

// OpenGLDevice dispatches GLSL compute shaders over shader storage buffers.
// It needs an OpenGL 4.3 context current on the calling thread, which the
// window layer (raylib) creates; without one initialization fails. The
// creating goroutine is locked to its OS thread, and every method must be
// called from that goroutine.
type OpenGLDevice struct {
	programs map[string]uint32
	renderer string
	released bool
	log      *zap.Logger
}

func NewOpenGLDevice(opts Options) (*OpenGLDevice, error) {
	if err := gl.Init(); err != nil {
		return nil, deviceErr("opengl", "init", ErrDeviceInit, err)
	}
	version := gl.GetString(gl.VERSION)
	if version == nil {
		return nil, deviceErr("opengl", "init", ErrDeviceInit, fmt.Errorf("no current context"))
	}
	var major, minor int32
	gl.GetIntegerv(gl.MAJOR_VERSION, &major)
	gl.GetIntegerv(gl.MINOR_VERSION, &minor)
	if major < 4 || (major == 4 && minor < 3) {
		return nil, deviceErr("opengl", "init", ErrDeviceInit, fmt.Errorf("compute shaders need 4.3, context is %d.%d", major, minor))
	}

	runtime.LockOSThread()

	d := &OpenGLDevice{
		programs: make(map[string]uint32),
		renderer: gl.GoStr(gl.GetString(gl.RENDERER)),
		log:      opts.logger(),
	}

	var maxGroupCount, maxGroupSize int32
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_COUNT, 0, &maxGroupCount)
	gl.GetIntegeri_v(gl.MAX_COMPUTE_WORK_GROUP_SIZE, 0, &maxGroupSize)
	d.log.Info("opengl compute device ready",
		zap.String("renderer", d.renderer),
		zap.String("version", gl.GoStr(version)),
		zap.Int32("max_work_groups", maxGroupCount),
		zap.Int32("max_work_group_size", maxGroupSize))
	return d, nil
}

func (d *OpenGLDevice) Name() string { return "opengl (" + d.renderer + ")" }

func (d *OpenGLDevice) Alloc(n int) (Buffer, error) {
	if d.released {
		return nil, deviceErr("opengl", "alloc", ErrDeviceIO, ErrReleased)
	}
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, id)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, n*4, nil, gl.DYNAMIC_COPY)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	if err := glError(); err != nil {
		gl.DeleteBuffers(1, &id)
		return nil, deviceErr("opengl", "alloc", ErrDeviceIO, err)
	}
	return &glBuffer{id: id, n: n}, nil
}

func (d *OpenGLDevice) Dispatch(k *Kernel, args Args, n int) error {
	if d.released {
		return deviceErr("opengl", "dispatch", ErrKernelExecution, ErrReleased)
	}
	program, err := d.program(k)
	if err != nil {
		return deviceErr("opengl", "dispatch "+k.Name, ErrKernelExecution, err)
	}
	if n <= 0 {
		return nil
	}

	gl.UseProgram(program)
	for i, b := range args.Buffers {
		gb, ok := b.(*glBuffer)
		if !ok || gb.id == 0 {
			return deviceErr("opengl", "dispatch "+k.Name, ErrKernelExecution, fmt.Errorf("argument %d is not a live opengl buffer", i))
		}
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(i), gb.id)
	}
	if len(args.Params) > 0 {
		loc := gl.GetUniformLocation(program, gl.Str("params\x00"))
		gl.Uniform1fv(loc, int32(len(args.Params)), &args.Params[0])
	}
	gl.Uniform1ui(gl.GetUniformLocation(program, gl.Str("count\x00")), uint32(n))

	groups := (n + k.groupSize() - 1) / k.groupSize()
	gl.DispatchCompute(uint32(groups), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
	gl.Finish()

	if err := glError(); err != nil {
		return deviceErr("opengl", "dispatch "+k.Name, ErrKernelExecution, err)
	}
	return nil
}

func (d *OpenGLDevice) program(k *Kernel) (uint32, error) {
	if p, ok := d.programs[k.Name]; ok {
		return p, nil
	}
	if k.GLSL == "" {
		return 0, fmt.Errorf("kernel %s has no glsl source", k.Name)
	}
	p, err := compileCompute(k.GLSL)
	if err != nil {
		return 0, fmt.Errorf("kernel %s: %w", k.Name, err)
	}
	d.programs[k.Name] = p
	return p, nil
}

func (d *OpenGLDevice) Release() {
	if d.released {
		return
	}
	d.released = true
	for _, p := range d.programs {
		gl.DeleteProgram(p)
	}
	d.programs = nil
}

type glBuffer struct {
	id uint32
	n  int
}

func (b *glBuffer) Len() int { return b.n }

func (b *glBuffer) Write(src []float32) error {
	if b.id == 0 {
		return deviceErr("opengl", "write", ErrDeviceIO, ErrReleased)
	}
	if len(src) != b.n {
		return deviceErr("opengl", "write", ErrDeviceIO, fmt.Errorf("length %d, buffer holds %d", len(src), b.n))
	}
	if b.n == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, b.id)
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, b.n*4, gl.Ptr(src))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	if err := glError(); err != nil {
		return deviceErr("opengl", "write", ErrDeviceIO, err)
	}
	return nil
}

func (b *glBuffer) Read(dst []float32) error {
	if b.id == 0 {
		return deviceErr("opengl", "read", ErrDeviceIO, ErrReleased)
	}
	if len(dst) != b.n {
		return deviceErr("opengl", "read", ErrDeviceIO, fmt.Errorf("length %d, buffer holds %d", len(dst), b.n))
	}
	if b.n == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, b.id)
	gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, b.n*4, gl.Ptr(dst))
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	if err := glError(); err != nil {
		return deviceErr("opengl", "read", ErrDeviceIO, err)
	}
	return nil
}

func (b *glBuffer) Release() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
}

func glError() error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl error 0x%04x", code)
	}
	return nil
}

func compileCompute(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile compute shader: %v", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link compute program")
	}
	return program, nil
}
