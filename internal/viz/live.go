package viz

import (
	"fmt"
	"image"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/bouncesim/internal/metrics"
	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

const (
	canvasWidth     = 80
	canvasHeight    = 24
	historyCapacity = 600
	maxStepsPerTick = 1 << 14
)

// Source is the particle store as seen by the viewer.
type Source interface {
	sim.Stepper
	Steps() uint64
	DeviceName() string
}

type Options struct {
	Dt            float32
	Width, Height float32
	Gravity       float32
	// StepsPerFrame is the number of steps between redraws.
	StepsPerFrame int
	FPS           int
	// Duration stops stepping after this much simulated time. Zero runs on.
	Duration float64
	Theme    string
	GIFPath  string
	// Observers receive every drawn frame, e.g. a recorder.
	Observers []sim.Observer
}

type TickMsg time.Time

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(44)
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
)

// Model is a Bubble Tea model that steps a Source and draws its particles
// on a braille canvas.
type Model struct {
	src     Source
	opts    Options
	canvas  *Canvas
	theme   Theme
	running bool
	done    bool
	err     error

	positions     []particles.Vec2
	energy        float64
	energyHistory []float64
	stepHistory   []float64
	lastTick      time.Time
	fps           float64

	recording bool
	frames    []*image.Paletted
	showHelp  bool
}

func NewModel(src Source, opts Options) Model {
	if opts.StepsPerFrame <= 0 {
		opts.StepsPerFrame = 1
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.GIFPath == "" {
		opts.GIFPath = "bouncesim.gif"
	}
	m := Model{
		src:           src,
		opts:          opts,
		canvas:        NewCanvas(canvasWidth, canvasHeight),
		theme:         GetTheme(opts.Theme),
		running:       true,
		energyHistory: make([]float64, 0, historyCapacity),
		stepHistory:   make([]float64, 0, historyCapacity),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Err returns the store failure that stopped the viewer, if any.
func (m Model) Err() error { return m.err }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.recording {
				m.saveGIF()
			}
			return m, tea.Quit
		case " ", "space":
			m.running = !m.running
		case "s":
			if !m.running {
				m.advance(1)
			}
		case "+", "=":
			m.opts.StepsPerFrame = min(m.opts.StepsPerFrame*2, maxStepsPerTick)
		case "-", "_":
			m.opts.StepsPerFrame = max(m.opts.StepsPerFrame/2, 1)
		case "t":
			m.theme = NextTheme(m.theme)
		case "g":
			if m.recording {
				m.saveGIF()
				m.recording = false
				m.frames = nil
			} else {
				m.recording = true
				m.frames = make([]*image.Paletted, 0)
			}
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		now := time.Time(msg)
		if !m.lastTick.IsZero() {
			if d := now.Sub(m.lastTick).Seconds(); d > 0 {
				m.fps = 1 / d
			}
		}
		m.lastTick = now
		if m.running && !m.done && m.err == nil {
			m.advance(m.opts.StepsPerFrame)
		}
		if m.recording {
			m.captureFrame()
		}
		return m, m.tick()
	}
	return m, nil
}

// advance steps the source n times, then refreshes the snapshot once.
func (m *Model) advance(n int) {
	start := time.Now()
	taken := 0
	for ; taken < n; taken++ {
		if m.opts.Duration > 0 && m.simTime() >= m.opts.Duration {
			m.done = true
			break
		}
		if err := m.src.Step(m.opts.Dt); err != nil {
			m.err = err
			m.running = false
			return
		}
	}
	if taken > 0 {
		per := time.Since(start).Seconds() / float64(taken)
		m.stepHistory = appendCapped(m.stepHistory, per*1e6)
	}
	m.refresh()
}

// refresh reads a snapshot back, redraws the canvas and feeds observers.
func (m *Model) refresh() {
	pos, err := m.src.SnapshotPositions()
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	vel, err := m.src.SnapshotVelocities()
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	m.positions = pos
	m.energy = metrics.TotalEnergy(pos, vel, float64(m.opts.Gravity))
	m.energyHistory = appendCapped(m.energyHistory, m.energy)

	frame := sim.Frame{Step: m.src.Steps(), Time: m.simTime(), Positions: pos, Velocities: vel}
	for _, o := range m.opts.Observers {
		if err := o.OnFrame(frame); err != nil {
			m.err = err
			m.running = false
			return
		}
	}
	m.draw()
}

func (m *Model) draw() {
	m.canvas.Clear()
	m.canvas.Frame()
	for _, p := range m.positions {
		m.canvas.Plot(p.X, p.Y, m.opts.Width, m.opts.Height)
	}
}

func (m Model) simTime() float64 {
	return float64(m.src.Steps()) * float64(m.opts.Dt)
}

func appendCapped(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

func (m Model) View() string {
	particleStyle := lipgloss.NewStyle().Foreground(m.theme.Particles)
	canvasView := canvasStyle.Render(particleStyle.Render(m.canvas.String()))

	header := lipgloss.NewStyle().Foreground(m.theme.Accent).Bold(true).MarginBottom(1)
	var s strings.Builder
	s.WriteString(header.Render("BOUNCESIM") + "\n")

	var status string
	switch {
	case m.err != nil:
		status = StatusFailed.Render("FAILED")
	case m.done:
		status = StatusPaused.Render("DONE")
	case !m.running:
		status = StatusPaused.Render("PAUSED")
	default:
		status = StatusRunning.Render("RUNNING")
	}
	if m.recording {
		status += "  " + StatusRecording.Render("● REC")
	}
	s.WriteString(status + "\n\n")

	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	row := func(label, value string) {
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(value) + "\n")
	}
	row("Device", m.src.DeviceName())
	row("Particles", fmt.Sprintf("%d", m.src.Len()))
	row("Time", fmt.Sprintf("%.3fs", m.simTime()))
	row("Steps", fmt.Sprintf("%d", m.src.Steps()))
	row("Speed", fmt.Sprintf("%d steps/frame", m.opts.StepsPerFrame))
	row("Energy", fmt.Sprintf("%.4g", m.energy))
	row("FPS", fmt.Sprintf("%.0f", m.fps))
	if len(m.stepHistory) > 0 {
		row("Step µs", SparklineChart(m.stepHistory, 20))
	}
	if m.opts.Duration > 0 {
		row("Progress", ProgressBar(m.simTime()/m.opts.Duration, 20))
	}
	if m.err != nil {
		s.WriteString("\n" + StatusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString(KeyHint.Render(Separator(22) + "\nSP:Pause S:Step Q:Quit\n+/-:Speed T:Theme G:GIF ?:Help"))

	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
	if m.showHelp {
		return `
╔══════════════════════════════════════╗
║          KEYBOARD SHORTCUTS          ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume simulation  ║
║  S        - Single step when paused  ║
║  + / -    - Double/halve speed       ║
║  T        - Cycle themes             ║
║  G        - Toggle GIF recording     ║
║  Q        - Quit                     ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝
` + "\n\n" + mainView
	}
	return mainView
}

// Run shows the viewer until the user quits and returns any store failure.
func Run(m Model) error {
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.err
	}
	return nil
}
