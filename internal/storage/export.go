package storage

import (
	"io"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

type ExportData struct {
	Device         string             `json:"device"`
	Particles      int                `json:"particles"`
	Dt             float32            `json:"dt"`
	Steps          uint64             `json:"steps"`
	SimTime        float64            `json:"sim_time"`
	WallSeconds    float64            `json:"wall_seconds"`
	StepsPerSecond float64            `json:"steps_per_second"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	Positions      []particles.Vec2   `json:"positions,omitempty"`
}

// ExportJSON writes a run summary to w, with the final positions when
// given.
func ExportJSON(w io.Writer, device string, n int, dt float32, res *sim.Result, metrics map[string]float64, final []particles.Vec2) error {
	data := ExportData{
		Device:         device,
		Particles:      n,
		Dt:             dt,
		Steps:          res.Steps,
		SimTime:        res.SimTime,
		WallSeconds:    res.Wall.Seconds(),
		StepsPerSecond: res.StepsPerSecond(),
		Metrics:        metrics,
		Positions:      final,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
