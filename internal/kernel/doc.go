// Package kernel holds the particle integration kernel.
//
// Each lane advances one particle by one step, independently of every other
// lane: gravity on the vertical velocity, a semi-implicit Euler position update,
// then a restitution-scaled reflection on each axis whose coordinate left the
// domain. [Advance] is the per-lane math; [Integrate] binds it, together with
// an equivalent GLSL compute shader, as a [compute.Kernel].
package kernel
