package metrics

import "github.com/san-kum/bouncesim/internal/sim"

// Containment is the fraction of observed frames in which every particle
// lies inside the closed domain. Anything below 1 is a kernel bug.
type Containment struct {
	name          string
	width, height float32
	violations    int
	samples       int
}

func NewContainment(width, height float32) *Containment {
	return &Containment{
		name:   "containment",
		width:  width,
		height: height,
	}
}

func (c *Containment) Name() string {
	return c.name
}

func (c *Containment) Observe(f sim.Frame) {
	c.samples++
	for _, p := range f.Positions {
		if p.X < 0 || p.X > c.width || p.Y < 0 || p.Y > c.height || p.X != p.X || p.Y != p.Y {
			c.violations++
			break
		}
	}
}

func (c *Containment) Value() float64 {
	if c.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(c.violations)/float64(c.samples)
}

func (c *Containment) Reset() {
	c.violations = 0
	c.samples = 0
}
