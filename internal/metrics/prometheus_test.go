package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder("cpu", 0)

	r.OnStep(2 * time.Millisecond)
	r.OnStep(3 * time.Millisecond)
	if got := testutil.ToFloat64(r.Steps); got != 2 {
		t.Errorf("expected 2 steps, got %v", got)
	}

	err := r.OnFrame(sim.Frame{
		Step:       2,
		Time:       0.02,
		Positions:  []particles.Vec2{{X: 1, Y: 1}, {X: 2, Y: 2}},
		Velocities: []particles.Vec2{{X: 1}, {Y: 1}},
	})
	if err != nil {
		t.Fatalf("frame failed: %v", err)
	}

	if got := testutil.ToFloat64(r.Particles); got != 2 {
		t.Errorf("expected 2 particles, got %v", got)
	}
	if got := testutil.ToFloat64(r.SimTime); got != 0.02 {
		t.Errorf("expected sim time 0.02, got %v", got)
	}
	if got := testutil.ToFloat64(r.Energy); got != 1 {
		t.Errorf("expected energy 1, got %v", got)
	}
	if got := testutil.CollectAndCount(r.StepDuration); got != 1 {
		t.Errorf("expected one histogram series, got %d", got)
	}
}

func TestRecorderHandler(t *testing.T) {
	r := NewRecorder("cpu (4 workers)", 9.81)
	r.OnStep(time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`bouncesim_steps_total{device="cpu (4 workers)"} 1`,
		"bouncesim_step_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRecorderLint(t *testing.T) {
	r := NewRecorder("cpu", 0)
	problems, err := testutil.GatherAndLint(r.Registry(), "bouncesim_steps_total", "bouncesim_particles")
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	for _, p := range problems {
		t.Errorf("%s: %s", p.Metric, p.Text)
	}
}
