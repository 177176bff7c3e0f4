package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/bouncesim/internal/sim"
)

// Recorder exports run telemetry to Prometheus. It implements sim.Observer
// and sim.StepObserver.
type Recorder struct {
	registry *prometheus.Registry
	gravity  float64

	StepDuration prometheus.Histogram
	Steps        prometheus.Counter
	Frames       prometheus.Counter
	Particles    prometheus.Gauge
	SimTime      prometheus.Gauge
	Energy       prometheus.Gauge
}

// NewRecorder registers the simulation collectors on a private registry
// labelled with the device name.
func NewRecorder(device string, gravity float64) *Recorder {
	labels := prometheus.Labels{"device": device}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		gravity:  gravity,
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "bouncesim_step_duration_seconds",
			Help:        "Wall time of one integration step including the device barrier",
			Buckets:     prometheus.ExponentialBuckets(1e-5, 4, 10),
			ConstLabels: labels,
		}),
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bouncesim_steps_total",
			Help:        "Completed integration steps",
			ConstLabels: labels,
		}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bouncesim_frames_total",
			Help:        "Snapshots read back from the device",
			ConstLabels: labels,
		}),
		Particles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bouncesim_particles",
			Help:        "Particles in the last snapshot",
			ConstLabels: labels,
		}),
		SimTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bouncesim_sim_time_seconds",
			Help:        "Simulated time of the last snapshot",
			ConstLabels: labels,
		}),
		Energy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "bouncesim_total_energy",
			Help:        "Kinetic plus potential energy of the last snapshot at unit mass",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(
		r.StepDuration, r.Steps, r.Frames, r.Particles, r.SimTime, r.Energy,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Recorder) OnStep(d time.Duration) {
	r.StepDuration.Observe(d.Seconds())
	r.Steps.Inc()
}

func (r *Recorder) OnFrame(f sim.Frame) error {
	r.Frames.Inc()
	r.Particles.Set(float64(len(f.Positions)))
	r.SimTime.Set(f.Time)
	if f.Velocities != nil {
		r.Energy.Set(TotalEnergy(f.Positions, f.Velocities, r.gravity))
	}
	return nil
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
