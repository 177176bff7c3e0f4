package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/bouncesim/internal/logging"
	"github.com/san-kum/bouncesim/internal/particles"
)

const (
	DefaultParticles = 1000
	DefaultWidth     = 1200.0
	DefaultHeight    = 800.0
	DefaultDt        = 0.001
	DefaultDuration  = 10.0
	DefaultDevice    = "auto"
	DefaultFPS       = 30
	DefaultEvery     = 100
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Particles   int     `yaml:"particles"`
	Width       float32 `yaml:"width"`
	Height      float32 `yaml:"height"`
	Gravity     float32 `yaml:"gravity"`
	Restitution float32 `yaml:"restitution"`
	Dt          float32 `yaml:"dt"`
	Duration    float64 `yaml:"duration"`
	Seed        int64   `yaml:"seed"`
	Device      string  `yaml:"device"`
	Workers     int     `yaml:"workers"`
	Strict      bool    `yaml:"strict"`

	Log     logging.Config `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Serve   ServeConfig    `yaml:"serve"`
	Record  RecordConfig   `yaml:"record"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type ServeConfig struct {
	Addr string `yaml:"addr"`
	FPS  int    `yaml:"fps"`
}

// RecordConfig enables the CSV recorder when Dir is set.
type RecordConfig struct {
	Dir   string `yaml:"dir"`
	Every int    `yaml:"every"`
}

func DefaultConfig() *Config {
	return &Config{
		Particles:   DefaultParticles,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		Gravity:     particles.DefaultGravity,
		Restitution: particles.DefaultRestitution,
		Dt:          DefaultDt,
		Duration:    DefaultDuration,
		Seed:        1,
		Device:      DefaultDevice,
		Log:         logging.DefaultConfig(),
		Serve:       ServeConfig{Addr: ":8080", FPS: DefaultFPS},
		Record:      RecordConfig{Every: DefaultEvery},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of base, so fields the file leaves out keep
// their base values. base is modified and returned.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return base, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields a run cannot start without. Restitution range
// and dt sign are only enforced when Strict is set, matching the store.
func (c *Config) Validate() error {
	var errs []error
	if c.Particles <= 0 {
		errs = append(errs, fmt.Errorf("%w: particles must be positive, got %d", ErrInvalid, c.Particles))
	}
	if !(c.Width > 0) || !(c.Height > 0) {
		errs = append(errs, fmt.Errorf("%w: domain must be positive, got %gx%g", ErrInvalid, c.Width, c.Height))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("%w: duration must not be negative, got %g", ErrInvalid, c.Duration))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Workers))
	}
	if c.Record.Every < 0 || c.Serve.FPS < 0 {
		errs = append(errs, fmt.Errorf("%w: intervals must not be negative", ErrInvalid))
	}
	if c.Strict {
		if !(c.Dt > 0) {
			errs = append(errs, fmt.Errorf("%w: dt must be positive, got %g", ErrInvalid, c.Dt))
		}
		if c.Restitution < 0 || c.Restitution > 1 {
			errs = append(errs, fmt.Errorf("%w: restitution must be in [0,1], got %g", ErrInvalid, c.Restitution))
		}
	}
	return errors.Join(errs...)
}

// Store returns the particle store parameters of c.
func (c *Config) Store() particles.Config {
	return particles.Config{
		Particles:   c.Particles,
		Width:       c.Width,
		Height:      c.Height,
		Gravity:     c.Gravity,
		Restitution: c.Restitution,
	}
}
