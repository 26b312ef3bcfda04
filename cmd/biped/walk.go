package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/AhmedElnaggar-275/Robot/pkg/fake"
	"github.com/AhmedElnaggar-275/Robot/pkg/link"
	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
	"github.com/AhmedElnaggar-275/Robot/pkg/pilot"
	"github.com/AhmedElnaggar-275/Robot/pkg/ranging"
	"github.com/AhmedElnaggar-275/Robot/pkg/robot"
	"github.com/AhmedElnaggar-275/Robot/pkg/telemetry"
)

type WalkCommand struct {
	Sim       bool    `long:"sim" description:"Run against simulated legs, sensor and keyboard commands"`
	Headless  bool    `long:"headless" description:"Run without the dashboard"`
	Stdin     bool    `long:"stdin" description:"Read commands from standard input instead of the serial link (headless only)"`
	Telemetry string  `long:"telemetry" value-name:"ADDR" description:"Stream state over websocket on ADDR, e.g. :8080"`
	Hz        int     `long:"hz" description:"Control loop frequency (overrides config)"`
	StrokeMS  int     `long:"stroke-ms" description:"Stroke duration in ms (overrides config)"`
	PauseMS   int     `long:"pause-ms" description:"Pause duration in ms (overrides config)"`
	Threshold float64 `long:"threshold" description:"Obstacle distance in cm (overrides config)"`
}

const (
	headerHeight = 2 // title + blank line
	tableHeight  = 9 // status table
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	chartMaxCM = 60.0
	simStepCM  = 5.0
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// hardware is what the pilot drives, real or simulated.
type hardware struct {
	legs    locomotion.Actuators
	ranger  locomotion.Ranger
	source  locomotion.Source
	closers []func() error

	// Set in simulation only.
	simRanger *fake.Ranger
	simSource *fake.Source
}

func (h *hardware) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			logrus.WithError(err).Warn("close")
		}
	}
}

// openSimulation fakes the legs and sensor. Commands are read from cmds, or
// come from the dashboard keys when cmds is nil.
func openSimulation(cmds io.Reader) *hardware {
	ranger := fake.NewRanger(100)
	h := &hardware{
		legs:      fake.NewLegs(),
		ranger:    ranger,
		simRanger: ranger,
	}
	if cmds != nil {
		l := link.New(cmds)
		h.source = l
		h.closers = append(h.closers, l.Close)
		return h
	}
	h.simSource = fake.NewSource()
	h.source = h.simSource
	return h
}

func openHardware(ctx context.Context, cfg *robot.Config, stdin bool) (*hardware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &hardware{}

	legs, err := robot.NewLegs(ctx, cfg.Servos.Port, cfg.Servos.Calibration)
	if err != nil {
		return nil, fmt.Errorf("legs: %w", err)
	}
	h.closers = append(h.closers, legs.Close)
	if angles, err := legs.ReadAngles(ctx); err == nil {
		logrus.WithField("angles", angles).Info("legs before enabling torque")
	}
	if err := legs.Enable(ctx); err != nil {
		h.Close()
		return nil, fmt.Errorf("enable torque: %w", err)
	}
	h.closers = append(h.closers, func() error { return legs.Disable(context.Background()) })
	h.legs = legs

	sensor, err := ranging.Open(cfg.Ranging.TrigPin, cfg.Ranging.EchoPin, cfg.Ranging.EchoTimeout())
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("ranging: %w", err)
	}
	h.closers = append(h.closers, sensor.Close)
	h.ranger = sensor

	var source *link.Link
	if stdin {
		source = link.New(os.Stdin)
	} else {
		if cfg.Link.Port == "" {
			h.Close()
			return nil, errors.New("command port not configured")
		}
		source, err = link.Open(cfg.Link.Port, cfg.Link.Baud)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("link: %w", err)
		}
	}
	h.closers = append(h.closers, source.Close)
	h.source = source

	return h, nil
}

func (c *WalkCommand) loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		if c.Sim && errors.Is(err, os.ErrNotExist) {
			cfg = robot.DefaultConfig()
		} else {
			return nil, err
		}
	}

	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if c.StrokeMS > 0 {
		cfg.Gait.StrokeMS = c.StrokeMS
	}
	if c.PauseMS > 0 {
		cfg.Gait.PauseMS = c.PauseMS
	}
	if c.Threshold > 0 {
		cfg.Gait.ThresholdCM = c.Threshold
	}
	return cfg, nil
}

func (c *WalkCommand) Execute(args []string) error {
	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Stdin && !c.Headless {
		return errors.New("--stdin needs --headless: the dashboard reads the keyboard")
	}

	// The dashboard owns the terminal; its log box shows the pilot's messages.
	if !c.Headless && opts.LogFile == "" {
		logrus.SetOutput(io.Discard)
	}

	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "No usable configuration in %s (%v). Run 'biped setup' first.\n", opts.Config, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hw *hardware
	if c.Sim {
		var cmds io.Reader
		if c.Stdin {
			cmds = os.Stdin
		}
		hw = openSimulation(cmds)
	} else {
		hw, err = openHardware(ctx, cfg, c.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	defer hw.Close()

	p := pilot.New(hw.legs, hw.ranger, hw.source, pilot.Config{
		Hz:        cfg.LoopHz(),
		Timing:    cfg.Gait.Timing(),
		Threshold: cfg.Gait.ThresholdCM,
	})

	if c.Telemetry != "" {
		hub := telemetry.NewHub()
		p.Subscribe(hub.Publish)

		mux := http.NewServeMux()
		mux.Handle("/state", hub)
		srv := &http.Server{Addr: c.Telemetry, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logrus.WithError(err).Error("telemetry server")
			}
		}()
		defer func() {
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logrus.Infof("telemetry on ws://%s/state", c.Telemetry)
	}

	if c.Headless {
		if err := p.Start(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	}

	// Start controller in background
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Start(loopCtx); err != nil && err != context.Canceled {
			logrus.WithError(err).Error("control loop")
		}
	}()

	prog := tea.NewProgram(initialWalkModel(p, hw, cfg.Gait.ThresholdCM), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = prog.Run()

	// Wait for the loop to put the legs back at neutral.
	cancel()
	<-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

type walkModel struct {
	pilot     *pilot.Pilot
	hw        *hardware
	chart     *streamlinechart.Model
	threshold float64
	state     pilot.State
	width     int      // terminal width
	height    int      // terminal height
	logs      []string // last N log messages
	quitting  bool
}

// Messages from the pilot
type stateMsg pilot.State
type logMsg string

func waitForState(p *pilot.Pilot) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-p.States())
	}
}

func waitForLog(p *pilot.Pilot) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-p.Logs())
	}
}

func initialWalkModel(p *pilot.Pilot, hw *hardware, threshold float64) walkModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(0, chartMaxCM),
	)
	chart.SetDataSetStyles("distance", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("51")))
	chart.SetDataSetStyles("threshold", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("196")))

	return walkModel{
		pilot:     p,
		hw:        hw,
		chart:     &chart,
		threshold: threshold,
	}
}

func (m *walkModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *walkModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - tableHeight - footerHeight - borderSize
	if height < 6 {
		height = 6
	}
	return width, height
}

func (m walkModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.pilot),
		waitForLog(m.pilot),
	)
}

// simKeys maps keys to command bytes in simulation.
var simKeys = map[string]byte{
	"w": 'F', "up": 'F',
	"a": 'L', "left": 'L',
	"d": 'R', "right": 'R',
	"s": 'S', " ": 'S', "down": 'S',
}

func (m walkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		if m.hw.simSource != nil {
			if b, ok := simKeys[key]; ok {
				m.hw.simSource.Push(b)
			}
			m.adjustSimDistance(key)
		}

	case stateMsg:
		m.state = pilot.State(msg)
		d := m.state.Distance
		if d < 0 || d > chartMaxCM {
			d = chartMaxCM
		}
		m.chart.PushDataSet("distance", d)
		m.chart.PushDataSet("threshold", m.threshold)
		m.chart.DrawAll()
		return m, waitForState(m.pilot)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.pilot)
	}

	return m, nil
}

func (m walkModel) adjustSimDistance(key string) {
	r := m.hw.simRanger
	base := m.state.Distance
	if base < 0 {
		base = chartMaxCM
	}
	switch key {
	case "+", "=":
		r.Set(base + simStepCM)
	case "-":
		d := base - simStepCM
		if d < 1 {
			d = 1
		}
		r.Set(d)
	case "n":
		r.Set(locomotion.NoEcho)
	}
}

func phaseOf(s locomotion.Status) string {
	switch s.Command {
	case locomotion.Forward:
		return s.WalkPhase.String()
	case locomotion.RotateLeft, locomotion.RotateRight:
		if s.RotatePhase != nil {
			return s.RotatePhase.String()
		}
	}
	return "-"
}

func formatDistance(d float64) string {
	if d == locomotion.NoEcho {
		return "no echo"
	}
	return fmt.Sprintf("%.1f cm", d)
}

func (m walkModel) renderStatus() string {
	s := m.state.Status
	obstacle := okStyle.Render("clear")
	if s.ObstacleNear {
		obstacle = alertStyle.Render("NEAR")
	}

	rows := [][]string{
		{"Command", s.Command.String()},
		{"Phase", phaseOf(s)},
		{"Right leg", fmt.Sprintf("%d°", s.Right)},
		{"Left leg", fmt.Sprintf("%d°", s.Left)},
		{"Distance", formatDistance(s.Distance)},
		{"Obstacle", obstacle},
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return statusStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Render()
}

func (m walkModel) View() string {
	if m.quitting {
		return "Control loop stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Biped Walk"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.pilot.Hz()))
	if m.hw.simSource != nil {
		sb.WriteString(statusStyle.Render("  [sim: w/a/d/s move, +/- distance, n no-echo]"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}
