package storage

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

func testMeta() RunMetadata {
	return RunMetadata{
		Device:      "cpu",
		Seed:        42,
		Particles:   2,
		Width:       10,
		Height:      10,
		Gravity:     9.81,
		Restitution: 0.8,
		Dt:          0.01,
		Duration:    1,
		Every:       5,
	}
}

func TestRecorderWritesTraceAndMetadata(t *testing.T) {
	st := New(t.TempDir())

	rec, err := st.Create(testMeta())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if rec.ID() == "" {
		t.Fatal("expected non-empty run id")
	}

	frames := []sim.Frame{
		{Step: 0, Time: 0, Positions: []particles.Vec2{{X: 1, Y: 2}, {X: 3, Y: 4}}},
		{Step: 5, Time: 0.05, Positions: []particles.Vec2{{X: 1.5, Y: 2.5}, {X: 3.5, Y: 4.5}}},
	}
	for _, f := range frames {
		if err := rec.OnFrame(f); err != nil {
			t.Fatalf("frame failed: %v", err)
		}
	}
	res := &sim.Result{Steps: 5, SimTime: 0.05, Wall: 20 * time.Millisecond, Frames: 2}
	if err := rec.Finish(res, map[string]float64{"containment": 1}); err != nil {
		t.Fatalf("finish failed: %v", err)
	}

	file, err := os.Open(filepath.Join(rec.Dir(), "positions.csv"))
	if err != nil {
		t.Fatalf("open trace failed: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read trace failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "step,time,i,x,y" {
		t.Errorf("unexpected header %v", records[0])
	}
	if strings.Join(records[4], ",") != "5,0.050000,1,3.5000,4.5000" {
		t.Errorf("unexpected last row %v", records[4])
	}

	meta, err := st.Load(rec.ID())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Seed != 42 || meta.Device != "cpu" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Steps != 5 || meta.Frames != 2 {
		t.Errorf("expected 5 steps and 2 frames, got %d/%d", meta.Steps, meta.Frames)
	}
	if meta.Metrics["containment"] != 1 {
		t.Errorf("expected containment 1, got %f", meta.Metrics["containment"])
	}
}

func TestStoreList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	first := testMeta()
	first.Timestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := testMeta()
	second.Timestamp = first.Timestamp.Add(time.Hour)

	for _, m := range []RunMetadata{second, first} {
		rec, err := st.Create(m)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := rec.Finish(&sim.Result{}, nil); err != nil {
			t.Fatalf("finish failed: %v", err)
		}
	}

	// An unfinished recording has no metadata and is skipped.
	if _, err := st.Create(testMeta()); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].Timestamp.Before(runs[1].Timestamp) {
		t.Error("expected runs ordered by timestamp")
	}
}

func TestLoadMissing(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	res := &sim.Result{Steps: 100, SimTime: 1, Wall: time.Second}
	err := ExportJSON(&buf, "cpu", 1, 0.01, res, map[string]float64{"energy": 3}, []particles.Vec2{{X: 1, Y: 2}})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Steps != 100 || got.StepsPerSecond != 100 {
		t.Errorf("unexpected summary %+v", got)
	}
	if len(got.Positions) != 1 || got.Positions[0].Y != 2 {
		t.Errorf("unexpected positions %+v", got.Positions)
	}
	if !strings.Contains(buf.String(), `"x": 1`) {
		t.Errorf("expected lower-case coordinates in %s", buf.String())
	}
}
