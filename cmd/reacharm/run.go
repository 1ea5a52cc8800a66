package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/control"
	"github.com/gwillem/reacharm/pkg/teleop"
)

type RunCommand struct {
	Hz  int  `long:"hz" description:"Control loop frequency (default from config)"`
	Sim bool `long:"sim" description:"Drive a simulated appendage instead of the servo bus"`
}

const (
	headerHeight = 3 // title, status line, blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 9 // key help + log box
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

type series struct {
	name  string
	color string
}

var chartSeries = []series{
	{"slide %", "208"},       // orange
	{"slide target %", "94"}, // brown
	{"arm °", "51"},          // cyan
	{"arm target °", "25"},   // blue
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

const keyHelp = "↑/↓ reach  a moving  x scoring  b intake  y park  1/2/3 hang setup/grab/pull  g grab  e eject  space settle  esc stop"

type runModel struct {
	ctrl     *teleop.Controller
	input    *keyboardInput
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    teleop.State
	last     teleop.State
	quitting bool
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// moved reports whether the plotted values changed since the last point.
func (m *runModel) moved(s teleop.State) bool {
	if m.last.Timestamp.IsZero() {
		return true
	}
	return s.SlideHeight != m.last.SlideHeight || s.SlideTarget != m.last.SlideTarget ||
		s.ArmAngle != m.last.ArmAngle || s.ArmTarget != m.last.ArmTarget
}

type stateMsg teleop.State
type logMsg string
type stoppedMsg struct{ err error }

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(ctrl *teleop.Controller, input *keyboardInput) runModel {
	// percent and degrees share one axis
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-90, 120),
	)
	for _, s := range chartSeries {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}
	return runModel{
		ctrl:  ctrl,
		input: input,
		chart: &chart,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			m.input.Press(msg.String())
		}

	case stateMsg:
		s := teleop.State(msg)
		m.state = s
		if m.moved(s) {
			m.chart.PushDataSet(chartSeries[0].name, s.SlideHeight*100)
			m.chart.PushDataSet(chartSeries[1].name, s.SlideTarget*100)
			m.chart.PushDataSet(chartSeries[2].name, s.ArmAngle)
			m.chart.PushDataSet(chartSeries[3].name, s.ArmTarget)
			m.chart.DrawAll()
			m.last = s
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case stoppedMsg:
		if msg.err != nil {
			m.addLog(errorStyle.Render(msg.err.Error()))
		}
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Appendage stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("reacharm"))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	sb.WriteString(statusStyle.Render(keyHelp))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	logLines := statusStyle.Render("Press 'q' to quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m runModel) statusLine() string {
	s := m.state
	arm := "parked"
	if s.ArmActive {
		arm = "active"
	}
	line := fmt.Sprintf("mode %-10s arm %-6s reach %3.0f%% (stick %3.0f%%)  slide %5.1f%% → %5.1f%%  arm %6.1f° → %6.1f°",
		s.Mode, arm, s.Reach*100, m.input.Reach()*100,
		s.SlideHeight*100, s.SlideTarget*100, s.ArmAngle, s.ArmTarget)
	if s.Error != nil {
		line += "  " + errorStyle.Render(s.Error.Error())
	}
	return line
}

func renderLegend() string {
	var items []string
	for _, s := range chartSeries {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+s.name)
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	logger := newLogger(opts.LogFile, opts.Verbose)
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Exists(opts.Config) {
		if err := config.Watch(ctx, opts.Config, store, logger.Named("config")); err != nil {
			logger.Warnf("config hot reload disabled: %v", err)
		}
	}

	clk := clock.New()
	reg, closer, err := openRegistry(ctx, cfg, c.Sim, clk, logger)
	if err != nil {
		return err
	}

	coord, err := control.New(ctx, reg, store, clk, logger)
	if err != nil {
		_ = closer.Close()
		return errors.Wrap(err, "build coordinator")
	}

	sink, closeSink := newSink(cfg, logger)
	defer func() { _ = closeSink() }()

	hz := c.Hz
	if hz <= 0 {
		hz = cfg.Loop.Hz
	}
	input := newKeyboardInput()
	ctrl, err := teleop.NewController(teleop.Config{
		Coordinator: coord,
		Input:       input,
		Sink:        sink,
		Closer:      closer,
		Hz:          hz,
		Clock:       clk,
		Logger:      logger.Named("teleop"),
	})
	if err != nil {
		_ = closer.Close()
		return err
	}
	defer ctrl.Close()

	p := tea.NewProgram(initialRunModel(ctrl, input), tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := ctrl.Start(ctx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			logger.Errorf("controller: %v", err)
		}
		p.Send(stoppedMsg{err: err})
	}()

	_, err = p.Run()
	// stop the loop before the deferred Close releases the bus
	cancel()
	<-done
	return errors.Wrap(err, "run tui")
}
