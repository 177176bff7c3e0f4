package kernel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/bouncesim/internal/compute"
)

func approx(a, b, tol float32) bool {
	return float32(math.Abs(float64(a-b))) <= tol
}

func TestAdvanceGravityScenario(t *testing.T) {
	p := Params{Dt: 0.001, Gravity: 9.81, Width: 1200, Height: 800}
	got := Advance(Particle{X: 0, Y: 400, Mass: 1, Restitution: 0.8}, p)

	if !approx(got.VY, -0.00981, 1e-7) {
		t.Errorf("expected vy -0.00981, got %v", got.VY)
	}
	if !approx(got.Y, 399.99999019, 1e-4) {
		t.Errorf("expected y ~399.99999019, got %v", got.Y)
	}
	if got.X != 0 || got.VX != 0 {
		t.Errorf("expected no horizontal motion, got x=%v vx=%v", got.X, got.VX)
	}
}

func TestAdvanceLeftWallScenario(t *testing.T) {
	p := Params{Dt: 0.001, Gravity: 0, Width: 1200, Height: 800}
	got := Advance(Particle{X: -5, Y: 100, VX: 3, Mass: 1, Restitution: 0.8}, p)

	if got.X != 0 {
		t.Errorf("expected x clamped to 0, got %v", got.X)
	}
	if !approx(got.VX, -3*0.8, 1e-6) {
		t.Errorf("expected vx %v, got %v", -3*0.8, got.VX)
	}
}

func TestReflect(t *testing.T) {
	tests := []struct {
		name             string
		pos, vel, limit  float32
		restitution      float32
		wantPos, wantVel float32
	}{
		{"inside", 5, 2, 10, 0.5, 5, 2},
		{"on lower wall", 0, -2, 10, 0.5, 0, -2},
		{"on upper wall", 10, 2, 10, 0.5, 10, 2},
		{"below", -1, -4, 10, 0.5, 0, 2},
		{"above", 11, 4, 10, 0.5, 10, -2},
		{"outside moving inward", -1, 4, 10, 0.5, 0, -2},
		{"elastic", 12, 3, 10, 1, 10, -3},
		{"inelastic", -3, -3, 10, 0, 0, 0},
		{"restitution above one", 11, 2, 10, 1.5, 10, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, vel := reflect(tt.pos, tt.vel, tt.limit, tt.restitution)
			if pos != tt.wantPos || !approx(vel, tt.wantVel, 1e-6) {
				t.Errorf("got (%v, %v), want (%v, %v)", pos, vel, tt.wantPos, tt.wantVel)
			}
		})
	}
}

func TestAdvanceStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := Params{Dt: 0.05, Gravity: 9.81, Width: 100, Height: 50}

	for trial := 0; trial < 200; trial++ {
		pt := Particle{
			X:           rng.Float32() * p.Width,
			Y:           rng.Float32() * p.Height,
			VX:          (rng.Float32() - 0.5) * 400,
			VY:          (rng.Float32() - 0.5) * 400,
			Mass:        1,
			Restitution: rng.Float32(),
		}
		for step := 0; step < 500; step++ {
			pt = Advance(pt, p)
			if pt.X < 0 || pt.X > p.Width || pt.Y < 0 || pt.Y > p.Height {
				t.Fatalf("trial %d step %d: out of bounds (%v, %v)", trial, step, pt.X, pt.Y)
			}
		}
	}
}

func TestBounceNeverGainsSpeed(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p := Params{Dt: 0.1, Gravity: 0, Width: 10, Height: 10}

	for trial := 0; trial < 1000; trial++ {
		pt := Particle{
			X:           rng.Float32()*30 - 10,
			Y:           rng.Float32()*30 - 10,
			VX:          (rng.Float32() - 0.5) * 50,
			VY:          (rng.Float32() - 0.5) * 50,
			Restitution: rng.Float32(),
		}
		next := Advance(pt, p)
		if abs32(next.VX) > abs32(pt.VX) {
			t.Fatalf("trial %d: |vx| grew from %v to %v", trial, pt.VX, next.VX)
		}
		if abs32(next.VY) > abs32(pt.VY) {
			t.Fatalf("trial %d: |vy| grew from %v to %v", trial, pt.VY, next.VY)
		}
	}
}

func TestStraightLineWithoutForces(t *testing.T) {
	p := Params{Dt: 0.01, Gravity: 0, Width: 1000, Height: 1000}
	start := Particle{X: 100, Y: 200, VX: 3, VY: -2, Mass: 1, Restitution: 1}

	pt := start
	steps := 1000
	for i := 0; i < steps; i++ {
		pt = Advance(pt, p)
	}

	elapsed := float32(steps) * p.Dt
	wantX := start.X + start.VX*elapsed
	wantY := start.Y + start.VY*elapsed
	if !approx(pt.X, wantX, 0.05) || !approx(pt.Y, wantY, 0.05) {
		t.Errorf("expected (%v, %v), got (%v, %v)", wantX, wantY, pt.X, pt.Y)
	}
	if pt.VX != start.VX || pt.VY != start.VY {
		t.Errorf("velocity changed: (%v, %v)", pt.VX, pt.VY)
	}
}

func TestMassDoesNotAffectMotion(t *testing.T) {
	p := Params{Dt: 0.02, Gravity: 9.81, Width: 10, Height: 10}
	light := Particle{X: 5, Y: 5, VX: 1, VY: 1, Mass: 1, Restitution: 0.8}
	heavy := light
	heavy.Mass = 1000

	for i := 0; i < 300; i++ {
		light, heavy = Advance(light, p), Advance(heavy, p)
	}
	if light.X != heavy.X || light.Y != heavy.Y || light.VX != heavy.VX || light.VY != heavy.VY {
		t.Errorf("mass changed the trajectory: %+v vs %+v", light, heavy)
	}
}

func TestIntegrateKernelMatchesAdvance(t *testing.T) {
	const n = 5000
	dev := compute.NewCPUDevice(compute.Options{Workers: 4})
	defer dev.Release()

	rng := rand.New(rand.NewSource(3))
	pos := make([]float32, 2*n)
	vel := make([]float32, 2*n)
	mass := make([]float32, n)
	rest := make([]float32, n)
	for i := 0; i < n; i++ {
		pos[2*i], pos[2*i+1] = rng.Float32()*120, rng.Float32()*80
		vel[2*i], vel[2*i+1] = rng.Float32()*10, rng.Float32()*10
		mass[i], rest[i] = 1, 0.8
	}

	host := [][]float32{pos, vel, mass, rest}
	bufs := make([]compute.Buffer, NumSlots)
	for slot, data := range host {
		b, err := dev.Alloc(len(data))
		if err != nil {
			t.Fatalf("alloc failed: %v", err)
		}
		if err := b.Write(data); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		bufs[slot] = b
	}

	p := Params{Dt: 0.5, Gravity: 9.81, Width: 120, Height: 80}
	if err := dev.Dispatch(Integrate, compute.Args{Buffers: bufs, Params: p.Uniforms()}, n); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	gotPos := make([]float32, 2*n)
	gotVel := make([]float32, 2*n)
	if err := bufs[SlotPosition].Read(gotPos); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if err := bufs[SlotVelocity].Read(gotVel); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	for i := 0; i < n; i++ {
		want := Advance(Particle{
			X: pos[2*i], Y: pos[2*i+1], VX: vel[2*i], VY: vel[2*i+1],
			Mass: mass[i], Restitution: rest[i],
		}, p)
		if gotPos[2*i] != want.X || gotPos[2*i+1] != want.Y || gotVel[2*i] != want.VX || gotVel[2*i+1] != want.VY {
			t.Fatalf("lane %d: kernel (%v,%v,%v,%v) != advance %+v", i, gotPos[2*i], gotPos[2*i+1], gotVel[2*i], gotVel[2*i+1], want)
		}
	}
}

func TestIntegrateKernelMalformedUniforms(t *testing.T) {
	dev := compute.NewCPUDevice(compute.Options{Workers: 1})
	defer dev.Release()

	bufs := make([]compute.Buffer, NumSlots)
	for slot, size := range []int{2, 2, 1, 1} {
		b, _ := dev.Alloc(size)
		bufs[slot] = b
	}
	err := dev.Dispatch(Integrate, compute.Args{Buffers: bufs, Params: []float32{0.1}}, 1)
	if err == nil {
		t.Fatal("expected kernel error for truncated uniforms")
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
