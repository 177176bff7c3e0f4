package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Particles != 1000 {
		t.Errorf("expected 1000 particles, got %d", cfg.Particles)
	}
	if cfg.Width != 1200 || cfg.Height != 800 {
		t.Errorf("expected 1200x800, got %gx%g", cfg.Width, cfg.Height)
	}
	if cfg.Gravity != 9.81 || cfg.Restitution != 0.8 {
		t.Errorf("unexpected physics defaults: g=%g r=%g", cfg.Gravity, cfg.Restitution)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("rain")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Gravity != 20 || cfg.Restitution != 0.3 {
		t.Errorf("expected g=20 r=0.3, got g=%g r=%g", cfg.Gravity, cfg.Restitution)
	}
	if cfg.Particles != DefaultParticles {
		t.Errorf("preset changed unrelated field: particles=%d", cfg.Particles)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if cfg := GetPreset("nonexistent"); cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestPresetsDoNotShareState(t *testing.T) {
	a := GetPreset("dense")
	a.Particles = 3
	if b := GetPreset("dense"); b.Particles != 100000 {
		t.Errorf("preset mutated through earlier result: %d", b.Particles)
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	want := []string{"default", "dense", "elastic", "rain", "zero-g"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], names[i])
		}
	}
	for _, name := range names {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero particles", func(c *Config) { c.Particles = 0 }, true},
		{"zero width", func(c *Config) { c.Width = 0 }, true},
		{"negative duration", func(c *Config) { c.Duration = -1 }, true},
		{"negative workers", func(c *Config) { c.Workers = -2 }, true},
		{"negative dt unvalidated", func(c *Config) { c.Dt = -0.1 }, false},
		{"negative dt validated", func(c *Config) { c.Dt = -0.1; c.Strict = true }, true},
		{"restitution above one validated", func(c *Config) { c.Restitution = 1.2; c.Strict = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	cfg := GetPreset("zero-g")
	cfg.Seed = 99
	cfg.Record.Dir = "runs"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte("particles: 50\ngravity: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Particles != 50 || cfg.Gravity != 0 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Width != DefaultWidth || cfg.Restitution != 0.8 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("particles: [1, 2"), 0644)
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadOverPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte("restitution: 0.5\ngravity: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOver(path, GetPreset("rain"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Restitution != 0.5 || cfg.Gravity != 3 {
		t.Errorf("file did not override preset: restitution %v gravity %v", cfg.Restitution, cfg.Gravity)
	}

	path = filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("particles: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOver(path, GetPreset("rain"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Particles != 50 || cfg.Gravity != 20 || cfg.Restitution != 0.3 {
		t.Errorf("preset fields lost under partial file: %+v", cfg)
	}
}
