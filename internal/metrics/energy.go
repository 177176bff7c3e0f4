package metrics

import (
	"math"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

// TotalEnergy is the kinetic plus gravitational potential energy of a
// snapshot with every particle at unit mass. The floor is y = 0.
func TotalEnergy(pos, vel []particles.Vec2, gravity float64) float64 {
	var e float64
	for i := range pos {
		if i < len(vel) {
			vx, vy := float64(vel[i].X), float64(vel[i].Y)
			e += 0.5 * (vx*vx + vy*vy)
		}
		e += gravity * float64(pos[i].Y)
	}
	return e
}

// Energy is the mean total energy over observed frames. Frames without
// velocities are skipped.
type Energy struct {
	name        string
	gravity     float64
	samples     int
	totalEnergy float64
	last        float64
}

func NewEnergy(gravity float64) *Energy {
	return &Energy{
		name:    "energy",
		gravity: gravity,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(f sim.Frame) {
	if f.Velocities == nil {
		return
	}
	e.last = TotalEnergy(f.Positions, f.Velocities, e.gravity)
	e.totalEnergy += e.last
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

// Last returns the energy of the most recent frame.
func (e *Energy) Last() float64 { return e.last }

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
	e.last = 0
}

// EnergyDrift is the largest relative change from the first frame's energy.
// With restitution below one walls remove energy, so drift is expected; the
// zero-g elastic case should stay near zero.
type EnergyDrift struct {
	name          string
	gravity       float64
	initialEnergy float64
	currentEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift(gravity float64) *EnergyDrift {
	return &EnergyDrift{
		name:    "energy_drift",
		gravity: gravity,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(f sim.Frame) {
	if f.Velocities == nil {
		return
	}
	energy := TotalEnergy(f.Positions, f.Velocities, e.gravity)

	if e.samples == 0 {
		e.initialEnergy = energy
	}

	e.currentEnergy = energy
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.currentEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
