package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/bouncesim/internal/compute"
	"github.com/san-kum/bouncesim/internal/config"
	"github.com/san-kum/bouncesim/internal/export"
	"github.com/san-kum/bouncesim/internal/gui"
	"github.com/san-kum/bouncesim/internal/metrics"
	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
	"github.com/san-kum/bouncesim/internal/storage"
	"github.com/san-kum/bouncesim/internal/stream"
	"github.com/san-kum/bouncesim/internal/viz"
)

const shutdownTimeout = 5 * time.Second

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func defaultMetrics(cfg *config.Config) *metrics.Set {
	g := float64(cfg.Gravity)
	return metrics.NewSet(
		metrics.NewEnergy(g),
		metrics.NewEnergyDrift(g),
		metrics.NewContainment(cfg.Width, cfg.Height),
	)
}

func runMetadata(cfg *config.Config, dev string) storage.RunMetadata {
	return storage.RunMetadata{
		Preset:      preset,
		Device:      dev,
		Seed:        cfg.Seed,
		Particles:   cfg.Particles,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Gravity:     cfg.Gravity,
		Restitution: cfg.Restitution,
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Every:       cfg.Record.Every,
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg, log, false)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	runner := sim.New(store, log)
	set := defaultMetrics(cfg)
	runner.AddObserver(set)

	if cfg.Metrics.Addr != "" {
		prom := metrics.NewRecorder(store.DeviceName(), float64(cfg.Gravity))
		runner.AddObserver(prom)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: prom.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	var rec *storage.Recorder
	if cfg.Record.Dir != "" {
		rec, err = storage.New(cfg.Record.Dir).Create(runMetadata(cfg, store.DeviceName()))
		if err != nil {
			return err
		}
		runner.AddObserver(rec)
	}

	if !jsonOut {
		fmt.Printf("running %d particles on %s...\n", store.Len(), store.DeviceName())
	}
	res, err := runRecorded(ctx, runner, rec, set, sim.Config{
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Every:      cfg.Record.Every,
		Velocities: true,
	})
	if err != nil {
		return err
	}
	values := set.Values()

	if svgPath != "" {
		if err := writeSVG(svgPath, store, cfg); err != nil {
			return err
		}
	}

	if jsonOut {
		var final []particles.Vec2
		if withPositions {
			if final, err = store.SnapshotPositions(); err != nil {
				return err
			}
		}
		return storage.ExportJSON(os.Stdout, store.DeviceName(), store.Len(), cfg.Dt, res, values, final)
	}

	fmt.Printf("completed in %v\n", res.Wall.Round(time.Millisecond))
	if rec != nil {
		fmt.Printf("run id: %s\n", rec.ID())
	}
	fmt.Printf("steps: %d (%.0f steps/s)\n", res.Steps, res.StepsPerSecond())
	fmt.Printf("simulated: %.3fs\n", res.SimTime)
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(values) {
		fmt.Printf("  %s: %.6f\n", name, values[name])
	}
	return nil
}

// runRecorded runs to completion or interruption and always finishes the
// recording, so a failed run still leaves a readable trace and metadata.
// Interruption is not an error.
func runRecorded(ctx context.Context, runner *sim.Runner, rec *storage.Recorder, set *metrics.Set, cfg sim.Config) (*sim.Result, error) {
	res, runErr := runner.Run(ctx, cfg)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if rec != nil {
		if err := rec.Finish(res, set.Values()); err != nil {
			return res, errors.Join(runErr, err)
		}
	}
	return res, runErr
}

func writeSVG(path string, store *particles.Store, cfg *config.Config) error {
	pos, err := store.SnapshotPositions()
	if err != nil {
		return err
	}
	vel, err := store.SnapshotVelocities()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return export.ParticlesSVG(f, pos, vel, cfg.Width, cfg.Height, export.SVGOptions{MaxSpeed: 2 * particles.MaxInitialSpeed})
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// The terminal viewer owns the screen; keep logs quiet unless asked.
	if !cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.Log.Level = "error"
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg, log, false)
	if err != nil {
		return err
	}
	defer store.Close()

	fps, _ := cmd.Flags().GetInt("fps")
	spf, _ := cmd.Flags().GetInt("steps-per-frame")
	opts := viz.Options{
		Dt:            cfg.Dt,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Gravity:       cfg.Gravity,
		StepsPerFrame: spf,
		FPS:           fps,
		Duration:      cfg.Duration,
		Theme:         theme,
		GIFPath:       gifPath,
	}

	var rec *storage.Recorder
	if cfg.Record.Dir != "" {
		meta := runMetadata(cfg, store.DeviceName())
		meta.Every = spf
		if rec, err = storage.New(cfg.Record.Dir).Create(meta); err != nil {
			return err
		}
		opts.Observers = append(opts.Observers, rec)
	}

	start := time.Now()
	runErr := viz.Run(viz.NewModel(store, opts))
	if rec != nil {
		res := &sim.Result{
			Steps:   store.Steps(),
			SimTime: float64(store.Steps()) * float64(cfg.Dt),
			Wall:    time.Since(start),
		}
		if err := rec.Finish(res, nil); err != nil {
			return errors.Join(runErr, err)
		}
	}
	return runErr
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("time") && configFile == "" {
		cfg.Duration = 0
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg, log, false)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := stream.NewHub(stream.Info{
		Device:    store.DeviceName(),
		Particles: store.Len(),
		Width:     cfg.Width,
		Height:    cfg.Height,
		Dt:        cfg.Dt,
	}, stream.HubOptions{FPS: cfg.Serve.FPS, Logger: log})
	prom := metrics.NewRecorder(store.DeviceName(), float64(cfg.Gravity))

	runner := sim.New(store, log)
	runner.AddObserver(hub)
	runner.AddObserver(prom)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", prom.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: cfg.Serve.Addr, Handler: mux}

	// One frame per broadcast interval of simulated time.
	frameEvery := 1
	if cfg.Serve.FPS > 0 && cfg.Dt > 0 {
		frameEvery = max(1, int(math.Round(1/(float64(cfg.Serve.FPS)*float64(cfg.Dt)))))
	}

	sigCtx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving", zap.String("addr", cfg.Serve.Addr), zap.Int("every", frameEvery))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		res, err := runner.Run(ctx, sim.Config{
			Dt:         cfg.Dt,
			Duration:   cfg.Duration,
			Every:      frameEvery,
			Velocities: true,
			Pace:       true,
		})
		if res != nil {
			log.Info("simulation stopped",
				zap.Uint64("steps", res.Steps),
				zap.Float64("sim_time", res.SimTime),
				zap.Float64("steps_per_second", res.StepsPerSecond()))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	sent, dropped := hub.Stats()
	log.Info("server stopped", zap.Uint64("frames_sent", sent), zap.Uint64("frames_dropped", dropped))
	return err
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.Log.Level = "warn"
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("benchmarking %d steps, dt=%g\n\n", benchSteps, cfg.Dt)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARTICLES\tDEVICE\tSTEPS\tTIME\tSTEPS/SEC\tPARTICLE-STEPS/SEC")

	for _, n := range benchSizes {
		c := *cfg
		c.Particles = n
		if err := c.Validate(); err != nil {
			return err
		}
		store, err := openStore(&c, log, false)
		if err != nil {
			return err
		}

		res, err := sim.New(store, log).Run(ctx, sim.Config{
			Dt:       c.Dt,
			Duration: float64(benchSteps) * float64(c.Dt),
		})
		name := store.DeviceName()
		store.Close()
		if err != nil {
			return err
		}

		sps := res.StepsPerSecond()
		fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%.0f\t%.3g\n",
			n, name, res.Steps, res.Wall.Round(time.Microsecond), sps, sps*float64(n))
	}
	return w.Flush()
}

func runGUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	fps, _ := cmd.Flags().GetInt("fps")
	spf, _ := cmd.Flags().GetInt("steps-per-frame")
	return gui.Run(func() (gui.Source, error) {
		return openStore(cfg, log, true)
	}, gui.Options{
		Dt:            cfg.Dt,
		Width:         cfg.Width,
		Height:        cfg.Height,
		Gravity:       cfg.Gravity,
		StepsPerFrame: spf,
		FPS:           fps,
		Duration:      cfg.Duration,
		Logger:        log,
	})
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARTICLES\tGRAVITY\tRESTITUTION\tDESCRIPTION")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%d\t%g\t%g\t%s\n",
			name, cfg.Particles, cfg.Gravity, cfg.Restitution, config.Presets[name].Description)
	}
	return w.Flush()
}

func listDevices(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tDETAIL")
	for _, name := range compute.Names() {
		dev, err := compute.Open(name, compute.Options{})
		if err != nil {
			fmt.Fprintf(w, "%s\tunavailable\t%v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "%s\tok\t%s\n", name, dev.Name())
		dev.Release()
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDEVICE\tPARTICLES\tDT\tSTEPS\tFRAMES")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4fs\t%d\t%d\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Device,
			run.Particles,
			run.Dt,
			run.Steps,
			run.Frames,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	meta, err := storage.New(dataDir).Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run:       %s\n", meta.ID)
	fmt.Printf("time:      %s\n", meta.Timestamp.Format(time.RFC3339))
	if meta.Preset != "" {
		fmt.Printf("preset:    %s\n", meta.Preset)
	}
	fmt.Printf("device:    %s\n", meta.Device)
	fmt.Printf("particles: %d in %gx%g\n", meta.Particles, meta.Width, meta.Height)
	fmt.Printf("physics:   g=%g restitution=%g dt=%g\n", meta.Gravity, meta.Restitution, meta.Dt)
	fmt.Printf("steps:     %d (%d frames, %.2fs wall)\n", meta.Steps, meta.Frames, meta.WallSeconds)
	for _, name := range sortedKeys(meta.Metrics) {
		fmt.Printf("  %s: %.6f\n", name, meta.Metrics[name])
	}
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}
