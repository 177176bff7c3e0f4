package storage

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/san-kum/bouncesim/internal/sim"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	metadataFile = "metadata.json"
	framesFile   = "positions.csv"
)

// Store lays out recorded runs as one directory per run under baseDir.
// Recordings are write-only from the simulator's point of view: List and
// Load read metadata back, nothing reloads particle state.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID          string             `json:"id"`
	Preset      string             `json:"preset,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Device      string             `json:"device"`
	Seed        int64              `json:"seed"`
	Particles   int                `json:"particles"`
	Width       float32            `json:"width"`
	Height      float32            `json:"height"`
	Gravity     float32            `json:"gravity"`
	Restitution float32            `json:"restitution"`
	Dt          float32            `json:"dt"`
	Duration    float64            `json:"duration"`
	Every       int                `json:"every"`
	Steps       uint64             `json:"steps"`
	Frames      int                `json:"frames"`
	WallSeconds float64            `json:"wall_seconds"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Create starts a recording. The returned Recorder writes every frame it
// observes to the run's CSV trace; Finish writes the metadata.
func (s *Store) Create(meta RunMetadata) (*Recorder, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.ID = fmt.Sprintf("bounce_%s_%d", meta.Timestamp.Format("20060102-150405"), meta.Timestamp.UnixNano()%1e6)
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, err
	}

	f, err := os.Create(filepath.Join(runDir, framesFile))
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriterSize(f, 1<<16)
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"step", "time", "i", "x", "y"}); err != nil {
		f.Close()
		return nil, err
	}

	return &Recorder{dir: runDir, meta: meta, file: f, buf: buf, w: w}, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// Recorder appends frames to a run's CSV trace. It implements sim.Observer.
type Recorder struct {
	dir  string
	meta RunMetadata
	file *os.File
	buf  *bufio.Writer
	w    *csv.Writer
	row  []string
}

func (r *Recorder) ID() string { return r.meta.ID }

func (r *Recorder) Dir() string { return r.dir }

func (r *Recorder) OnFrame(f sim.Frame) error {
	step := strconv.FormatUint(f.Step, 10)
	t := strconv.FormatFloat(f.Time, 'f', 6, 64)
	for i, p := range f.Positions {
		r.row = append(r.row[:0],
			step,
			t,
			strconv.Itoa(i),
			strconv.FormatFloat(float64(p.X), 'f', 4, 32),
			strconv.FormatFloat(float64(p.Y), 'f', 4, 32),
		)
		if err := r.w.Write(r.row); err != nil {
			return err
		}
	}
	r.meta.Frames++
	return nil
}

// Finish flushes the trace and writes metadata.json with the run result.
func (r *Recorder) Finish(res *sim.Result, metrics map[string]float64) error {
	r.w.Flush()
	err := r.w.Error()
	if ferr := r.buf.Flush(); err == nil {
		err = ferr
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", framesFile, err)
	}

	if res != nil {
		r.meta.Steps = res.Steps
		r.meta.WallSeconds = res.Wall.Seconds()
	}
	r.meta.Metrics = metrics

	metaFile, err := os.Create(filepath.Join(r.dir, metadataFile))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(r.meta)
}
