package gui

import (
	"go.uber.org/zap"

	"github.com/san-kum/bouncesim/internal/sim"
)

// Source is the particle store as seen by the window viewer. Run closes it
// while the window's GL context is still current.
type Source interface {
	sim.Stepper
	Steps() uint64
	DeviceName() string
	Close() error
}

type Options struct {
	Dt            float32
	Width, Height float32
	Gravity       float32
	StepsPerFrame int
	FPS           int
	Duration      float64
	Observers     []sim.Observer
	Logger        *zap.Logger
}
