package sim

import (
	"time"

	"github.com/san-kum/bouncesim/internal/particles"
)

// Stepper is the part of a particle store the runner drives.
type Stepper interface {
	Step(dt float32) error
	SnapshotPositions() ([]particles.Vec2, error)
	SnapshotVelocities() ([]particles.Vec2, error)
	Len() int
}

// Frame is one snapshot handed to observers. The slices are fresh copies
// owned by the runner; observers must not retain them past OnFrame unless
// they copy.
type Frame struct {
	Step       uint64
	Time       float64
	Positions  []particles.Vec2
	Velocities []particles.Vec2
}

// Observer receives frames. A non-nil error stops the run.
type Observer interface {
	OnFrame(f Frame) error
}

// StepObserver is notified after every step with its wall duration.
type StepObserver interface {
	OnStep(d time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Frame) error

func (f ObserverFunc) OnFrame(fr Frame) error { return f(fr) }

type Config struct {
	Dt float32
	// Duration is simulated seconds. Zero runs until the context ends.
	Duration float64
	// Every is the frame interval in steps. Zero disables frames.
	Every int
	// Velocities adds a velocity snapshot to each frame.
	Velocities bool
	// Pace holds simulated time to wall time.
	Pace bool
}

type Result struct {
	Steps   uint64
	SimTime float64
	Wall    time.Duration
	Frames  int
}

// StepsPerSecond reports throughput over the wall time of the run.
func (r *Result) StepsPerSecond() float64 {
	if r.Wall <= 0 {
		return 0
	}
	return float64(r.Steps) / r.Wall.Seconds()
}
