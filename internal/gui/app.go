//go:build raylib

package gui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
	"go.uber.org/zap"

	"github.com/san-kum/bouncesim/internal/metrics"
	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

var (
	ColBg      = rl.NewColor(10, 10, 10, 255)
	ColWall    = rl.NewColor(60, 60, 60, 255)
	ColSelect  = rl.NewColor(255, 255, 255, 255)
	ColText    = rl.NewColor(140, 140, 140, 255)
	ColTextDim = rl.NewColor(60, 60, 60, 255)
	ColSlow    = rl.NewColor(40, 120, 255, 255)
	ColFast    = rl.NewColor(255, 80, 40, 255)
)

const (
	windowWidth  = 1280
	windowHeight = 720
	margin       = 40
	maxTelemetry = 200
)

type App struct {
	src  Source
	opts Options
	log  *zap.Logger

	Running       bool
	StepsPerFrame int
	Telemetry     []float64

	scale   float32
	offsetX float32
	offsetY float32

	positions  []particles.Vec2
	velocities []particles.Vec2
	err        error
}

func initWindow(fps int) {
	if fps <= 0 {
		fps = 60
	}
	rl.SetConfigFlags(rl.FlagMsaa4xHint)
	rl.InitWindow(windowWidth, windowHeight, "bouncesim")
	rl.SetTargetFPS(int32(fps))
	rl.SetExitKey(0)
}

// Run opens the window, then calls open to build the particle source so a
// GPU device can bind to the window's GL context. It blocks until the window
// closes.
func Run(open func() (Source, error), opts Options) error {
	initWindow(opts.FPS)
	defer rl.CloseWindow()

	src, err := open()
	if err != nil {
		return err
	}
	defer src.Close()

	app := NewApp(src, opts)
	app.RunLoop()
	return app.err
}

func NewApp(src Source, opts Options) *App {
	if opts.StepsPerFrame <= 0 {
		opts.StepsPerFrame = 1
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{
		src:           src,
		opts:          opts,
		log:           log,
		Running:       true,
		StepsPerFrame: opts.StepsPerFrame,
		Telemetry:     make([]float64, 0, maxTelemetry),
	}
	sx := float32(windowWidth-2*margin) / opts.Width
	sy := float32(windowHeight-2*margin) / opts.Height
	a.scale = min(sx, sy)
	a.offsetX = (windowWidth - opts.Width*a.scale) / 2
	a.offsetY = (windowHeight - opts.Height*a.scale) / 2
	a.refresh()
	return a
}

func (a *App) RunLoop() {
	for !rl.WindowShouldClose() {
		if rl.IsKeyPressed(rl.KeyQ) {
			return
		}
		a.Update()
		a.Draw()
	}
}

func (a *App) Update() {
	switch {
	case rl.IsKeyPressed(rl.KeySpace):
		a.Running = !a.Running
	case rl.IsKeyPressed(rl.KeyUp):
		a.StepsPerFrame = min(a.StepsPerFrame*2, 1<<14)
	case rl.IsKeyPressed(rl.KeyDown):
		a.StepsPerFrame = max(a.StepsPerFrame/2, 1)
	}
	if !a.Running || a.err != nil {
		return
	}
	if a.opts.Duration > 0 && a.simTime() >= a.opts.Duration {
		return
	}

	for i := 0; i < a.StepsPerFrame; i++ {
		if err := a.src.Step(a.opts.Dt); err != nil {
			a.fail(err)
			return
		}
	}
	a.refresh()
}

func (a *App) refresh() {
	var err error
	if a.positions, err = a.src.SnapshotPositions(); err != nil {
		a.fail(err)
		return
	}
	if a.velocities, err = a.src.SnapshotVelocities(); err != nil {
		a.fail(err)
		return
	}

	energy := metrics.TotalEnergy(a.positions, a.velocities, float64(a.opts.Gravity))
	a.Telemetry = append(a.Telemetry, energy)
	if len(a.Telemetry) > maxTelemetry {
		a.Telemetry = a.Telemetry[1:]
	}

	frame := sim.Frame{Step: a.src.Steps(), Time: a.simTime(), Positions: a.positions, Velocities: a.velocities}
	for _, o := range a.opts.Observers {
		if err := o.OnFrame(frame); err != nil {
			a.fail(err)
			return
		}
	}
}

func (a *App) fail(err error) {
	a.err = err
	a.Running = false
	a.log.Error("viewer stopped", zap.Error(err))
}

func (a *App) simTime() float64 {
	return float64(a.src.Steps()) * float64(a.opts.Dt)
}

// toScreen maps a domain point to window pixels with y up.
func (a *App) toScreen(p particles.Vec2) (int32, int32) {
	x := a.offsetX + p.X*a.scale
	y := a.offsetY + (a.opts.Height-p.Y)*a.scale
	return int32(x), int32(y)
}

func (a *App) Draw() {
	rl.BeginDrawing()
	rl.ClearBackground(ColBg)

	a.drawParticles()
	a.DrawHUD()

	rl.EndDrawing()
}

func (a *App) drawParticles() {
	rl.DrawRectangleLines(int32(a.offsetX)-1, int32(a.offsetY)-1,
		int32(a.opts.Width*a.scale)+2, int32(a.opts.Height*a.scale)+2, ColWall)

	const vmax = 2 * particles.MaxInitialSpeed
	for i, p := range a.positions {
		x, y := a.toScreen(p)
		t := float32(0)
		if i < len(a.velocities) {
			v := a.velocities[i]
			t = min((v.X*v.X+v.Y*v.Y)/(vmax*vmax), 1)
		}
		col := lerp(ColSlow, ColFast, t)
		if len(a.positions) > 20000 {
			rl.DrawPixel(x, y, col)
		} else {
			rl.DrawCircle(x, y, 2, col)
		}
	}
}

func (a *App) DrawHUD() {
	rl.DrawText("bouncesim", 30, 12, 20, ColSelect)
	rl.DrawText(fmt.Sprintf(":: %s  %d particles", a.src.DeviceName(), a.src.Len()), 150, 16, 14, ColText)

	status, col := "RUNNING", ColSelect
	switch {
	case a.err != nil:
		status, col = "FAILED: "+a.err.Error(), rl.Red
	case !a.Running:
		status, col = "PAUSED", ColTextDim
	}
	rl.DrawText(status, windowWidth-300, 16, 14, col)

	a.DrawTelemetry()

	rl.DrawText(fmt.Sprintf("t=%.3fs  steps=%d  %d/frame  %d FPS", a.simTime(), a.src.Steps(), a.StepsPerFrame, rl.GetFPS()),
		30, windowHeight-24, 14, ColTextDim)
	rl.DrawText("[SPACE] PAUSE  [UP/DOWN] SPEED  [Q] QUIT", windowWidth-380, windowHeight-24, 14, ColTextDim)
}

// DrawTelemetry plots the energy history in the top right corner.
func (a *App) DrawTelemetry() {
	if len(a.Telemetry) < 2 {
		return
	}
	const w, h = 200, 50
	x0, y0 := int32(windowWidth-w-30), int32(40)

	lo, hi := a.Telemetry[0], a.Telemetry[0]
	for _, v := range a.Telemetry {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	step := float32(w) / float32(maxTelemetry)
	for i := 1; i < len(a.Telemetry); i++ {
		ya := y0 + h - int32((a.Telemetry[i-1]-lo)/span*h)
		yb := y0 + h - int32((a.Telemetry[i]-lo)/span*h)
		rl.DrawLine(x0+int32(float32(i-1)*step), ya, x0+int32(float32(i)*step), yb, ColText)
	}
	rl.DrawText(fmt.Sprintf("energy %.4g", a.Telemetry[len(a.Telemetry)-1]), x0, y0+h+4, 12, ColTextDim)
}

func lerp(a, b rl.Color, t float32) rl.Color {
	mix := func(x, y uint8) uint8 { return uint8(float32(x) + (float32(y)-float32(x))*t) }
	return rl.NewColor(mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255)
}
