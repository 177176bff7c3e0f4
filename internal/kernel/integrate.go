package kernel

import "github.com/san-kum/bouncesim/internal/compute"

// Buffer slots of the integration kernel, in dispatch order. Position and
// velocity hold interleaved (x, y) pairs.
const (
	SlotPosition = iota
	SlotVelocity
	SlotMass
	SlotRestitution
	NumSlots
)

// Params are the uniforms of one integration step.
type Params struct {
	Dt      float32
	Gravity float32
	Width   float32
	Height  float32
}

// Uniforms packs p in the order the kernel reads them.
func (p Params) Uniforms() []float32 {
	return []float32{p.Dt, p.Gravity, p.Width, p.Height}
}

// ParamsFrom unpacks uniforms written by Uniforms.
func ParamsFrom(u []float32) Params {
	return Params{Dt: u[0], Gravity: u[1], Width: u[2], Height: u[3]}
}

// Particle is the per-lane view of one particle.
type Particle struct {
	X, Y        float32
	VX, VY      float32
	Mass        float32
	Restitution float32
}

// Advance moves one particle through one step: gravity on vy, semi-implicit
// Euler on position, then a wall reflection per axis. Mass is carried but
// does not enter the update.
func Advance(pt Particle, p Params) Particle {
	pt.VY -= p.Gravity * p.Dt

	pt.X += pt.VX * p.Dt
	pt.Y += pt.VY * p.Dt

	pt.X, pt.VX = reflect(pt.X, pt.VX, p.Width, pt.Restitution)
	pt.Y, pt.VY = reflect(pt.Y, pt.VY, p.Height, pt.Restitution)
	return pt
}

// reflect bounces whenever pos lies outside [0, limit], whatever the sign
// of vel, and clamps pos back onto the wall.
func reflect(pos, vel, limit, restitution float32) (float32, float32) {
	if pos < 0 || pos > limit {
		vel = -vel * restitution
		if pos < 0 {
			pos = 0
		} else {
			pos = limit
		}
	}
	return pos, vel
}

func lanes(lo, hi int, bufs [][]float32, params []float32) {
	p := ParamsFrom(params)
	pos, vel := bufs[SlotPosition], bufs[SlotVelocity]
	mass, rest := bufs[SlotMass], bufs[SlotRestitution]
	_, _ = pos[2*hi-1], vel[2*hi-1]
	_, _ = mass[hi-1], rest[hi-1]

	for i := lo; i < hi; i++ {
		pt := Advance(Particle{
			X: pos[2*i], Y: pos[2*i+1],
			VX: vel[2*i], VY: vel[2*i+1],
			Mass:        mass[i],
			Restitution: rest[i],
		}, p)
		pos[2*i], pos[2*i+1] = pt.X, pt.Y
		vel[2*i], vel[2*i+1] = pt.VX, pt.VY
	}
}

// Integrate is the wall-bounce integration kernel.
var Integrate = &compute.Kernel{
	Name:      "integrate",
	Lanes:     lanes,
	GLSL:      integrateGLSL,
	GroupSize: 256,
}

const integrateGLSL = `#version 430
layout(local_size_x = 256) in;

layout(std430, binding = 0) buffer Position { vec2 pos[]; };
layout(std430, binding = 1) buffer Velocity { vec2 vel[]; };
layout(std430, binding = 2) readonly buffer Mass { float mass[]; };
layout(std430, binding = 3) readonly buffer Restitution { float restitution[]; };

uniform float params[4];
uniform uint count;

void main() {
    uint i = gl_GlobalInvocationID.x;
    if (i >= count) {
        return;
    }
    float dt = params[0];
    float gravity = params[1];
    float width = params[2];
    float height = params[3];

    vec2 p = pos[i];
    vec2 v = vel[i];
    float m = mass[i];
    float r = restitution[i];

    v.y -= gravity * dt;
    p += v * dt;

    if (p.x < 0.0 || p.x > width) {
        v.x = -v.x * r;
        p.x = clamp(p.x, 0.0, width);
    }
    if (p.y < 0.0 || p.y > height) {
        v.y = -v.y * r;
        p.y = clamp(p.y, 0.0, height);
    }

    pos[i] = p;
    vel[i] = v;
}
`
