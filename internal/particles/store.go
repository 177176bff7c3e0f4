package particles

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/san-kum/bouncesim/internal/compute"
	"github.com/san-kum/bouncesim/internal/kernel"
)

const (
	DefaultGravity     = 9.81
	DefaultRestitution = 0.8

	// MaxInitialSpeed bounds each random initial velocity component.
	MaxInitialSpeed = 10
)

// Config holds the constructor parameters of a Store. They are fixed for
// the lifetime of the store.
type Config struct {
	Particles   int
	Width       float32
	Height      float32
	Gravity     float32
	Restitution float32
}

// DefaultConfig returns a config for n particles in a width×height box.
func DefaultConfig(n int, width, height float32) Config {
	return Config{
		Particles:   n,
		Width:       width,
		Height:      height,
		Gravity:     DefaultGravity,
		Restitution: DefaultRestitution,
	}
}

// Store owns the canonical particle population and its device-resident
// mirrors. It is not safe for concurrent use: callers serialize Step and the
// snapshot methods.
type Store struct {
	dev    compute.Device
	cfg    Config
	n      int
	host   State
	bufs   []compute.Buffer
	params kernel.Params

	validate bool
	log      *zap.Logger

	steps  uint64
	err    error
	closed bool
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithValidation rejects dt ≤ 0 on Step and restitution outside [0,1] at
// construction. Kernel semantics are unchanged.
func WithValidation() Option {
	return func(s *Store) { s.validate = true }
}

// New builds a randomly initialized store on dev. The store takes ownership
// of dev and releases it on Close.
func New(dev compute.Device, cfg Config, rng *rand.Rand, opts ...Option) (*Store, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParameter)
	}
	if cfg.Particles <= 0 {
		return nil, fmt.Errorf("%w: particle count must be positive, got %d", ErrInvalidParameter, cfg.Particles)
	}
	if err := checkDomain(cfg); err != nil {
		return nil, err
	}
	st := Random(cfg.Particles, cfg.Width, cfg.Height, cfg.Restitution, rng)
	return newStore(dev, cfg, st, opts)
}

// NewFromState builds a store from an explicit population. cfg supplies the
// domain and gravity; particle count and restitution come from st.
func NewFromState(dev compute.Device, cfg Config, st State, opts ...Option) (*Store, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if err := checkDomain(cfg); err != nil {
		return nil, err
	}
	cfg.Particles = st.Len()
	return newStore(dev, cfg, st.Clone(), opts)
}

func checkDomain(cfg Config) error {
	if !(cfg.Width > 0) || !(cfg.Height > 0) {
		return fmt.Errorf("%w: domain must be positive, got %gx%g", ErrInvalidParameter, cfg.Width, cfg.Height)
	}
	return nil
}

func newStore(dev compute.Device, cfg Config, st State, opts []Option) (*Store, error) {
	s := &Store{
		cfg:  cfg,
		n:    st.Len(),
		host: st,
		params: kernel.Params{
			Gravity: cfg.Gravity,
			Width:   cfg.Width,
			Height:  cfg.Height,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if dev == nil {
		return nil, &compute.DeviceError{Device: "none", Op: "init", Kind: compute.ErrDeviceInit, Err: errors.New("no execution context")}
	}
	if s.validate {
		for i, r := range st.Restitution {
			if r < 0 || r > 1 {
				return nil, fmt.Errorf("%w: restitution[%d] = %g outside [0,1]", ErrInvalidParameter, i, r)
			}
		}
	}
	s.dev = dev

	if err := s.upload(); err != nil {
		s.releaseBuffers()
		s.log.Error("device upload failed", zap.String("device", dev.Name()), zap.Error(err))
		return nil, err
	}

	s.log.Info("particle store ready",
		zap.String("device", dev.Name()),
		zap.Int("particles", s.n),
		zap.Float32("width", cfg.Width),
		zap.Float32("height", cfg.Height),
		zap.Float32("gravity", cfg.Gravity))
	return s, nil
}

// upload creates the four device mirrors seeded from the host arrays.
func (s *Store) upload() error {
	host := make([][]float32, kernel.NumSlots)
	host[kernel.SlotPosition] = flatten(s.host.Position)
	host[kernel.SlotVelocity] = flatten(s.host.Velocity)
	host[kernel.SlotMass] = s.host.Mass
	host[kernel.SlotRestitution] = s.host.Restitution

	s.bufs = make([]compute.Buffer, 0, kernel.NumSlots)
	for _, data := range host {
		b, err := s.dev.Alloc(len(data))
		if err != nil {
			return err
		}
		s.bufs = append(s.bufs, b)
		if err := b.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// Step advances every particle by dt and returns once the device has
// finished. Device buffers change; the host arrays do not.
func (s *Store) Step(dt float32) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.validate && !(dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalidParameter, dt)
	}

	p := s.params
	p.Dt = dt
	args := compute.Args{Buffers: s.bufs, Params: p.Uniforms()}
	if err := s.dev.Dispatch(kernel.Integrate, args, s.n); err != nil {
		return s.fail("step", err)
	}
	s.steps++
	return nil
}

// SnapshotPositions copies the device position buffer into a fresh slice.
func (s *Store) SnapshotPositions() ([]Vec2, error) {
	return s.readVec2(kernel.SlotPosition, "snapshot positions")
}

// SnapshotVelocities copies the device velocity buffer into a fresh slice.
func (s *Store) SnapshotVelocities() ([]Vec2, error) {
	return s.readVec2(kernel.SlotVelocity, "snapshot velocities")
}

// Snapshot copies all four device buffers back into a new State.
func (s *Store) Snapshot() (State, error) {
	pos, err := s.SnapshotPositions()
	if err != nil {
		return State{}, err
	}
	vel, err := s.SnapshotVelocities()
	if err != nil {
		return State{}, err
	}
	mass, err := s.readScalar(kernel.SlotMass, "snapshot mass")
	if err != nil {
		return State{}, err
	}
	rest, err := s.readScalar(kernel.SlotRestitution, "snapshot restitution")
	if err != nil {
		return State{}, err
	}
	return State{Position: pos, Velocity: vel, Mass: mass, Restitution: rest}, nil
}

func (s *Store) readVec2(slot int, op string) ([]Vec2, error) {
	raw, err := s.readScalar(slot, op)
	if err != nil {
		return nil, err
	}
	return unflatten(raw), nil
}

func (s *Store) readScalar(slot int, op string) ([]float32, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	raw := make([]float32, s.bufs[slot].Len())
	if err := s.bufs[slot].Read(raw); err != nil {
		return nil, s.fail(op, err)
	}
	return raw, nil
}

func (s *Store) usable() error {
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, s.err)
	}
	return nil
}

func (s *Store) fail(op string, err error) error {
	s.err = err
	s.log.Error("particle store failed",
		zap.String("op", op),
		zap.Uint64("steps", s.steps),
		zap.Error(err))
	return err
}

// Len returns the particle count.
func (s *Store) Len() int { return s.n }

// Steps returns the number of completed steps.
func (s *Store) Steps() uint64 { return s.steps }

func (s *Store) Config() Config { return s.cfg }

func (s *Store) DeviceName() string { return s.dev.Name() }

// Err returns the failure that poisoned the store, if any.
func (s *Store) Err() error { return s.err }

// Close releases the device buffers and the device.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseBuffers()
	s.dev.Release()
	return nil
}

func (s *Store) releaseBuffers() {
	for _, b := range s.bufs {
		b.Release()
	}
	s.bufs = nil
}
