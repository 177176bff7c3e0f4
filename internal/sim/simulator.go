package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	store     Stepper
	observers []Observer
	steppers  []StepObserver
	log       *zap.Logger
}

func New(store Stepper, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: store, log: log}
}

// AddObserver registers o for frames. If o also implements StepObserver it
// is told the duration of every step.
func (r *Runner) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
	if so, ok := o.(StepObserver); ok {
		r.steppers = append(r.steppers, so)
	}
}

func (r *Runner) AddStepObserver(o StepObserver) { r.steppers = append(r.steppers, o) }

// Run steps the store until cfg.Duration of simulated time has passed or ctx
// ends. A frame is emitted before the first step and then every cfg.Every
// steps. Cancellation returns the partial result with ctx.Err().
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := uint64(math.MaxUint64)
	if cfg.Duration > 0 {
		steps = uint64(math.Round(cfg.Duration / float64(cfg.Dt)))
	}

	res := &Result{}
	start := time.Now()
	defer func() { res.Wall = time.Since(start) }()

	if cfg.Every > 0 {
		if err := r.emit(res, cfg); err != nil {
			return res, err
		}
	}

	r.log.Debug("run started",
		zap.Float32("dt", cfg.Dt),
		zap.Float64("duration", cfg.Duration),
		zap.Int("every", cfg.Every),
		zap.Int("particles", r.store.Len()))

	for res.Steps < steps {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t0 := time.Now()
		if err := r.store.Step(cfg.Dt); err != nil {
			return res, fmt.Errorf("step %d: %w", res.Steps, err)
		}
		d := time.Since(t0)
		for _, so := range r.steppers {
			so.OnStep(d)
		}

		res.Steps++
		res.SimTime = float64(res.Steps) * float64(cfg.Dt)

		if cfg.Every > 0 && res.Steps%uint64(cfg.Every) == 0 {
			if err := r.emit(res, cfg); err != nil {
				return res, err
			}
		}

		if cfg.Pace {
			if err := pace(ctx, start, res.SimTime); err != nil {
				return res, err
			}
		}
	}

	r.log.Debug("run finished", zap.Uint64("steps", res.Steps), zap.Int("frames", res.Frames))
	return res, nil
}

func (r *Runner) emit(res *Result, cfg Config) error {
	if len(r.observers) == 0 {
		return nil
	}
	pos, err := r.store.SnapshotPositions()
	if err != nil {
		return fmt.Errorf("snapshot at step %d: %w", res.Steps, err)
	}
	f := Frame{Step: res.Steps, Time: res.SimTime, Positions: pos}
	if cfg.Velocities {
		if f.Velocities, err = r.store.SnapshotVelocities(); err != nil {
			return fmt.Errorf("snapshot at step %d: %w", res.Steps, err)
		}
	}
	for _, o := range r.observers {
		if err := o.OnFrame(f); err != nil {
			return fmt.Errorf("observer at step %d: %w", res.Steps, err)
		}
	}
	res.Frames++
	return nil
}

// pace blocks until wall time since start catches up with simTime.
func pace(ctx context.Context, start time.Time, simTime float64) error {
	ahead := time.Duration(simTime*float64(time.Second)) - time.Since(start)
	if ahead <= time.Millisecond {
		return nil
	}
	timer := time.NewTimer(ahead)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func validateConfig(cfg Config) error {
	if !(cfg.Dt > 0) {
		return fmt.Errorf("dt must be positive, got %g", cfg.Dt)
	}
	if cfg.Duration < 0 || math.IsNaN(cfg.Duration) {
		return fmt.Errorf("duration must not be negative, got %g", cfg.Duration)
	}
	if cfg.Every < 0 {
		return fmt.Errorf("frame interval must not be negative, got %d", cfg.Every)
	}
	return nil
}
