package compute

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// minLanesPerJob keeps tiny populations from being split across goroutines.
const minLanesPerJob = 1024

// CPUDevice runs kernels on a fixed pool of worker goroutines. Each worker
// takes a contiguous chunk of lanes; a dispatch returns once every chunk is done.
type CPUDevice struct {
	workers int
	jobs    chan laneJob
	exited  sync.WaitGroup
	once    sync.Once

	released bool
	log      *zap.Logger
}

type laneJob struct {
	lo, hi int
	fn     LaneFunc
	bufs   [][]float32
	params []float32
	batch  *batch
}

// batch is the completion barrier of one dispatch.
type batch struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

func (b *batch) fail(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}

func NewCPUDevice(opts Options) *CPUDevice {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d := &CPUDevice{
		workers: workers,
		jobs:    make(chan laneJob, workers),
		log:     opts.logger(),
	}
	d.exited.Add(workers)
	for w := 0; w < workers; w++ {
		go d.worker()
	}
	d.log.Debug("cpu device ready", zap.Int("workers", workers))
	return d
}

func (d *CPUDevice) Name() string { return fmt.Sprintf("cpu (%d workers)", d.workers) }

func (d *CPUDevice) Workers() int { return d.workers }

func (d *CPUDevice) worker() {
	defer d.exited.Done()
	for job := range d.jobs {
		job.run()
	}
}

func (j laneJob) run() {
	defer j.batch.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			j.batch.fail(fmt.Errorf("lanes [%d,%d): %v", j.lo, j.hi, r))
		}
	}()
	j.fn(j.lo, j.hi, j.bufs, j.params)
}

func (d *CPUDevice) Alloc(n int) (Buffer, error) {
	if d.released {
		return nil, deviceErr("cpu", "alloc", ErrDeviceIO, ErrReleased)
	}
	if n < 0 {
		return nil, deviceErr("cpu", "alloc", ErrDeviceIO, fmt.Errorf("negative length %d", n))
	}
	return &cpuBuffer{data: make([]float32, n)}, nil
}

func (d *CPUDevice) Dispatch(k *Kernel, args Args, n int) error {
	if d.released {
		return deviceErr("cpu", "dispatch", ErrKernelExecution, ErrReleased)
	}
	if k == nil || k.Lanes == nil {
		return deviceErr("cpu", "dispatch", ErrKernelExecution, errors.New("kernel has no cpu lanes"))
	}
	bufs := make([][]float32, len(args.Buffers))
	for i, b := range args.Buffers {
		cb, ok := b.(*cpuBuffer)
		if !ok {
			return deviceErr("cpu", "dispatch", ErrKernelExecution, fmt.Errorf("%s: argument %d is not a cpu buffer", k.Name, i))
		}
		if cb.data == nil {
			return deviceErr("cpu", "dispatch", ErrKernelExecution, fmt.Errorf("%s: argument %d: %w", k.Name, i, ErrReleased))
		}
		bufs[i] = cb.data
	}
	if n <= 0 {
		return nil
	}

	chunks := d.workers
	if n/minLanesPerJob < chunks {
		chunks = n / minLanesPerJob
	}
	if chunks < 1 {
		chunks = 1
	}
	chunkSize := (n + chunks - 1) / chunks

	b := &batch{}
	for lo := 0; lo < n; lo += chunkSize {
		hi := lo + chunkSize
		if hi > n {
			hi = n
		}
		b.wg.Add(1)
		d.jobs <- laneJob{lo: lo, hi: hi, fn: k.Lanes, bufs: bufs, params: args.Params, batch: b}
	}
	b.wg.Wait()

	if b.err != nil {
		return deviceErr("cpu", "dispatch "+k.Name, ErrKernelExecution, b.err)
	}
	return nil
}

// Release stops the worker pool. Buffers allocated from the device stay
// readable but can no longer be dispatched on.
func (d *CPUDevice) Release() {
	d.once.Do(func() {
		d.released = true
		close(d.jobs)
		d.exited.Wait()
	})
}

type cpuBuffer struct {
	data []float32
}

func (b *cpuBuffer) Len() int { return len(b.data) }

func (b *cpuBuffer) Write(src []float32) error {
	if b.data == nil {
		return deviceErr("cpu", "write", ErrDeviceIO, ErrReleased)
	}
	if len(src) != len(b.data) {
		return deviceErr("cpu", "write", ErrDeviceIO, fmt.Errorf("length %d, buffer holds %d", len(src), len(b.data)))
	}
	copy(b.data, src)
	return nil
}

func (b *cpuBuffer) Read(dst []float32) error {
	if b.data == nil {
		return deviceErr("cpu", "read", ErrDeviceIO, ErrReleased)
	}
	if len(dst) != len(b.data) {
		return deviceErr("cpu", "read", ErrDeviceIO, fmt.Errorf("length %d, buffer holds %d", len(dst), len(b.data)))
	}
	copy(dst, b.data)
	return nil
}

func (b *cpuBuffer) Release() { b.data = nil }
