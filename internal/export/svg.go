package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/san-kum/bouncesim/internal/particles"
)

// SVGOptions controls the snapshot drawing. Zero values pick defaults.
type SVGOptions struct {
	// Scale is pixels per domain unit.
	Scale  float64
	Radius float64
	// MaxSpeed maps to the hottest color. Zero colors every particle alike.
	MaxSpeed   float64
	Background string
	Fill       string
}

func (o SVGOptions) withDefaults() SVGOptions {
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Radius <= 0 {
		o.Radius = 1.5
	}
	if o.Background == "" {
		o.Background = "#0a0a0a"
	}
	if o.Fill == "" {
		o.Fill = "#00ff9f"
	}
	return o
}

// ParticlesSVG writes positions as an SVG image of the width×height domain,
// y up. When vel is given and MaxSpeed is set, particles are colored from
// blue (still) to red (MaxSpeed or faster).
func ParticlesSVG(w io.Writer, pos, vel []particles.Vec2, width, height float32, opts SVGOptions) error {
	if !(width > 0) || !(height > 0) {
		return fmt.Errorf("export: domain must be positive, got %gx%g", width, height)
	}
	if vel != nil && len(vel) != len(pos) {
		return fmt.Errorf("export: %d velocities for %d positions", len(vel), len(pos))
	}
	opts = opts.withDefaults()

	pw := float64(width) * opts.Scale
	ph := float64(height) * opts.Scale

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
<g fill="%s">
`, pw, ph, pw, ph, opts.Background, opts.Fill)

	for i, p := range pos {
		cx := float64(p.X) * opts.Scale
		cy := (float64(height) - float64(p.Y)) * opts.Scale
		if vel != nil && opts.MaxSpeed > 0 {
			v := vel[i]
			speed := math.Hypot(float64(v.X), float64(v.Y))
			fmt.Fprintf(bw, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>
`, cx, cy, opts.Radius, heat(speed/opts.MaxSpeed))
			continue
		}
		fmt.Fprintf(bw, `<circle cx="%.1f" cy="%.1f" r="%.1f"/>
`, cx, cy, opts.Radius)
	}

	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

// heat maps t in [0,1] onto a blue to red ramp.
func heat(t float64) string {
	t = math.Max(0, math.Min(1, t))
	r := uint8(40 + t*215)
	g := uint8(120 - t*40)
	b := uint8(255 - t*215)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
