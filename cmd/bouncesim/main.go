package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/bouncesim/internal/compute"
	"github.com/san-kum/bouncesim/internal/config"
	"github.com/san-kum/bouncesim/internal/logging"
	"github.com/san-kum/bouncesim/internal/particles"
)

var errHeadlessGL = errors.New("opengl needs the window context of the gui command")

var (
	dataDir    string
	configFile string
	preset     string

	numParticles int
	width        float64
	height       float64
	gravity      float64
	restitution  float64
	dt           float64
	duration     float64
	seed         int64
	device       string
	workers      int
	strict       bool
	logLevel     string
	logFormat    string

	every         int
	record        bool
	jsonOut       bool
	withPositions bool
	metricsAddr   string
	addr          string
	frameRate     int
	stepsPerFrame int
	theme         string
	gifPath       string
	svgPath       string
	benchSizes    []int
	benchSteps    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bouncesim",
		Short:         "2d particle simulation under gravity with bouncing walls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".bouncesim", "data directory for recordings")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "start from a named preset")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a headless simulation",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addSimFlags(runCmd)
	runCmd.Flags().IntVar(&every, "every", config.DefaultEvery, "steps between snapshots")
	runCmd.Flags().BoolVar(&record, "record", false, "record a csv trace under the data directory")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the run summary as json")
	runCmd.Flags().BoolVar(&withPositions, "positions", false, "include final positions in the json summary")
	runCmd.Flags().StringVar(&svgPath, "svg", "", "write the final snapshot as an svg image")
	runCmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve prometheus metrics on this address during the run")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with the terminal viewer",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addSimFlags(liveCmd)
	liveCmd.Flags().IntVar(&frameRate, "fps", config.DefaultFPS, "frame rate")
	liveCmd.Flags().IntVar(&stepsPerFrame, "steps-per-frame", 10, "simulation steps between redraws")
	liveCmd.Flags().StringVar(&theme, "theme", "", "color theme")
	liveCmd.Flags().StringVar(&gifPath, "gif", "bouncesim.gif", "gif output path")
	liveCmd.Flags().BoolVar(&record, "record", false, "record drawn frames under the data directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "stream snapshots over websocket and expose metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addSimFlags(serveCmd)
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	serveCmd.Flags().IntVar(&frameRate, "fps", config.DefaultFPS, "broadcast rate")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "measure steps per second",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}
	addSimFlags(benchCmd)
	benchCmd.Flags().IntSliceVar(&benchSizes, "sizes", []int{1000, 10000, 100000}, "particle counts")
	benchCmd.Flags().IntVar(&benchSteps, "steps", 500, "steps per size")

	guiCmd := &cobra.Command{
		Use:   "gui",
		Short: "run with the window viewer",
		Args:  cobra.NoArgs,
		RunE:  runGUI,
	}
	addSimFlags(guiCmd)
	guiCmd.Flags().IntVar(&frameRate, "fps", 60, "frame rate")
	guiCmd.Flags().IntVar(&stepsPerFrame, "steps-per-frame", 16, "simulation steps per frame")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "list compute devices and whether they open",
		Args:  cobra.NoArgs,
		RunE:  listDevices,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print the metadata of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "write the effective config to a yaml file",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}
	addSimFlags(initCmd)

	rootCmd.AddCommand(runCmd, liveCmd, serveCmd, benchCmd, guiCmd, presetsCmd, devicesCmd, listCmd, showCmd, initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSimFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&numParticles, "particles", "n", config.DefaultParticles, "particle count")
	f.Float64Var(&width, "width", config.DefaultWidth, "domain width")
	f.Float64Var(&height, "height", config.DefaultHeight, "domain height")
	f.Float64Var(&gravity, "gravity", particles.DefaultGravity, "downward acceleration")
	f.Float64Var(&restitution, "restitution", particles.DefaultRestitution, "wall restitution")
	f.Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	f.Float64Var(&duration, "time", config.DefaultDuration, "simulated seconds (0 runs until interrupted)")
	f.Int64Var(&seed, "seed", 1, "random seed")
	f.StringVar(&device, "device", config.DefaultDevice, "compute device (auto, cpu, opengl)")
	f.IntVar(&workers, "workers", 0, "cpu worker count (0 uses every core)")
	f.BoolVar(&strict, "strict", false, "reject non-positive dt and restitution outside [0,1]")
}

// loadConfig layers defaults, preset, config file and changed flags, in
// that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		fileCfg, err := config.LoadOver(configFile, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = fileCfg
	}

	f := cmd.Flags()
	if f.Changed("particles") {
		cfg.Particles = numParticles
	}
	if f.Changed("width") {
		cfg.Width = float32(width)
	}
	if f.Changed("height") {
		cfg.Height = float32(height)
	}
	if f.Changed("gravity") {
		cfg.Gravity = float32(gravity)
	}
	if f.Changed("restitution") {
		cfg.Restitution = float32(restitution)
	}
	if f.Changed("dt") {
		cfg.Dt = float32(dt)
	}
	if f.Changed("time") {
		cfg.Duration = duration
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("device") {
		cfg.Device = device
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}
	if f.Changed("strict") {
		cfg.Strict = strict
	}
	if f.Changed("every") {
		cfg.Record.Every = every
	}
	if f.Changed("metrics") {
		cfg.Metrics.Addr = metricsAddr
	}
	if f.Changed("addr") {
		cfg.Serve.Addr = addr
	}
	if f.Changed("fps") {
		cfg.Serve.FPS = frameRate
	}
	if f.Changed("record") && record {
		cfg.Record.Dir = dataDir
	}

	pf := cmd.Root().PersistentFlags()
	if pf.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if pf.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// openStore opens the configured device and seeds a store on it. The store
// owns the device once this returns without error. Only a windowed caller
// has a GL context on its thread, so headless callers get the CPU device
// for "auto" and an error for "opengl".
func openStore(cfg *config.Config, log *zap.Logger, windowed bool) (*particles.Store, error) {
	name := cfg.Device
	if !windowed {
		switch name {
		case "", "auto":
			name = "cpu"
		case "opengl":
			return nil, &compute.DeviceError{Device: name, Op: "open", Kind: compute.ErrDeviceInit, Err: errHeadlessGL}
		}
	}
	dev, err := compute.Open(name, compute.Options{Workers: cfg.Workers, Logger: log})
	if err != nil {
		return nil, err
	}

	opts := []particles.Option{particles.WithLogger(log)}
	if cfg.Strict {
		opts = append(opts, particles.WithValidation())
	}
	store, err := particles.New(dev, cfg.Store(), rand.New(rand.NewSource(cfg.Seed)), opts...)
	if err != nil {
		dev.Release()
		return nil, err
	}
	return store, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
