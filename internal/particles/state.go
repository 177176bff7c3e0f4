package particles

import (
	"fmt"
	"math"
	"math/rand"
)

// Vec2 is a 2D vector in domain units.
type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// State is the particle population as parallel arrays. Every slice has the
// same length. Mass is kept for forward compatibility; the current physics
// never reads it.
type State struct {
	Position    []Vec2
	Velocity    []Vec2
	Mass        []float32
	Restitution []float32
}

// Len returns the number of particles.
func (s State) Len() int { return len(s.Position) }

// Validate checks the arrays are non-empty, the same length and finite.
func (s State) Validate() error {
	n := len(s.Position)
	if n == 0 {
		return fmt.Errorf("%w: empty population", ErrInvalidParameter)
	}
	if len(s.Velocity) != n || len(s.Mass) != n || len(s.Restitution) != n {
		return fmt.Errorf("%w: array lengths differ (position %d, velocity %d, mass %d, restitution %d)",
			ErrInvalidParameter, n, len(s.Velocity), len(s.Mass), len(s.Restitution))
	}
	if !s.IsFinite() {
		return fmt.Errorf("%w: state holds NaN or Inf", ErrInvalidParameter)
	}
	return nil
}

// IsFinite reports whether no component is NaN or Inf.
func (s State) IsFinite() bool {
	for i := range s.Position {
		if !finite(s.Position[i].X) || !finite(s.Position[i].Y) {
			return false
		}
	}
	for i := range s.Velocity {
		if !finite(s.Velocity[i].X) || !finite(s.Velocity[i].Y) {
			return false
		}
	}
	return true
}

func (s State) Clone() State {
	return State{
		Position:    append([]Vec2(nil), s.Position...),
		Velocity:    append([]Vec2(nil), s.Velocity...),
		Mass:        append([]float32(nil), s.Mass...),
		Restitution: append([]float32(nil), s.Restitution...),
	}
}

// Random draws a population uniformly over [0,width)×[0,height) with velocity
// components in [0,10). All positions are drawn before any velocity so a given
// seed always yields the same layout.
func Random(n int, width, height, restitution float32, rng *rand.Rand) State {
	s := State{
		Position:    make([]Vec2, n),
		Velocity:    make([]Vec2, n),
		Mass:        make([]float32, n),
		Restitution: make([]float32, n),
	}
	for i := range s.Position {
		s.Position[i] = Vec2{X: rng.Float32() * width, Y: rng.Float32() * height}
	}
	for i := range s.Velocity {
		s.Velocity[i] = Vec2{X: rng.Float32() * MaxInitialSpeed, Y: rng.Float32() * MaxInitialSpeed}
	}
	for i := 0; i < n; i++ {
		s.Mass[i] = 1
		s.Restitution[i] = restitution
	}
	return s
}

func flatten(v []Vec2) []float32 {
	out := make([]float32, 2*len(v))
	for i, p := range v {
		out[2*i], out[2*i+1] = p.X, p.Y
	}
	return out
}

func unflatten(f []float32) []Vec2 {
	out := make([]Vec2, len(f)/2)
	for i := range out {
		out[i] = Vec2{X: f[2*i], Y: f[2*i+1]}
	}
	return out
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
