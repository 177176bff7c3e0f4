package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

func TestTotalEnergy(t *testing.T) {
	pos := []particles.Vec2{{X: 1, Y: 2}, {X: 0, Y: 0}}
	vel := []particles.Vec2{{X: 3, Y: 4}, {X: 0, Y: 2}}

	// 0.5*25 + 9.81*2 + 0.5*4
	expected := 12.5 + 19.62 + 2.0
	if got := TotalEnergy(pos, vel, 9.81); math.Abs(got-expected) > 1e-6 {
		t.Errorf("expected energy %f, got %f", expected, got)
	}
}

func TestEnergyReset(t *testing.T) {
	m := NewEnergy(9.81)

	f := sim.Frame{
		Positions:  []particles.Vec2{{X: 1, Y: 1}},
		Velocities: []particles.Vec2{{X: 1, Y: 1}},
	}
	m.Observe(f)
	if m.Value() == 0 || m.Last() == 0 {
		t.Error("expected non-zero energy")
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergySkipsPositionOnlyFrames(t *testing.T) {
	m := NewEnergy(9.81)
	m.Observe(sim.Frame{Positions: []particles.Vec2{{Y: 10}}})
	if m.Value() != 0 {
		t.Errorf("expected frame without velocities to be ignored, got %f", m.Value())
	}
}

func TestEnergyDrift(t *testing.T) {
	d := NewEnergyDrift(0)
	frame := func(v float32) sim.Frame {
		return sim.Frame{
			Positions:  []particles.Vec2{{X: 1, Y: 1}},
			Velocities: []particles.Vec2{{X: v}},
		}
	}

	d.Observe(frame(2))
	d.Observe(frame(1))
	d.Observe(frame(2))

	if math.Abs(d.Value()-0.75) > 1e-9 {
		t.Errorf("expected max drift 0.75, got %f", d.Value())
	}
	d.Reset()
	if d.Value() != 0 {
		t.Error("expected zero drift after reset")
	}
}

func TestContainment(t *testing.T) {
	c := NewContainment(10, 10)
	if c.Value() != 1 {
		t.Errorf("expected 1 with no samples, got %f", c.Value())
	}

	c.Observe(sim.Frame{Positions: []particles.Vec2{{X: 0, Y: 10}, {X: 5, Y: 5}}})
	c.Observe(sim.Frame{Positions: []particles.Vec2{{X: 10.5, Y: 5}}})

	if c.Value() != 0.5 {
		t.Errorf("expected 0.5, got %f", c.Value())
	}
}

func TestSet(t *testing.T) {
	s := NewSet(NewContainment(10, 10))
	s.Add(NewEnergy(0))

	f := sim.Frame{
		Positions:  []particles.Vec2{{X: 1, Y: 1}},
		Velocities: []particles.Vec2{{X: 2}},
	}
	if err := s.OnFrame(f); err != nil {
		t.Fatalf("observe failed: %v", err)
	}

	values := s.Values()
	if values["containment"] != 1 || values["energy"] != 2 {
		t.Errorf("unexpected values: %v", values)
	}
	s.Reset()
	if s.Values()["energy"] != 0 {
		t.Error("expected reset to clear metrics")
	}
}
