package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/arm"
	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/intake"
	"github.com/gwillem/reacharm/pkg/robot"
	"github.com/gwillem/reacharm/pkg/slide"
)

type SetupCommand struct {
	Port  string `long:"port" description:"Serial port of the servo bus (scanned when empty)"`
	MaxID int    `long:"max-id" default:"12" description:"Highest servo id to scan for"`
}

// busDevice is a logical device the servo bus can back.
type busDevice struct {
	name string
	kind hardware.Kind
	hint string
}

var busDevices = []busDevice{
	{slide.MotorName, hardware.KindMotor, "extends the slide"},
	{arm.MotorName, hardware.KindMotor, "rotates the arm"},
	{intake.WristServoName, hardware.KindServo, "tilts the intake"},
	{intake.LeftServoName, hardware.KindCRServo, "left roller"},
	{intake.RightServoName, hardware.KindCRServo, "right roller"},
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("reacharm setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	logger := newLogger(opts.LogFile, opts.Verbose)
	defer func() { _ = logger.Sync() }()

	found, err := c.selectBus()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Bind servos ━━━"))
	fmt.Println()
	bindings, err := bindServos(found)
	found.bus.Close()
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		return errors.New("no servos bound")
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Record range of motion ━━━"))
	fmt.Println()
	if err := calibrate(found.port, bindings, logger.Named("bus")); err != nil {
		return err
	}

	cfg.Hardware.Port = found.port
	cfg.Hardware.Devices = bindings
	if cfg.Hardware.BaudRate == 0 {
		cfg.Hardware.BaudRate = robot.DefaultBaudRate
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(opts.Config, cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start with: " + headerStyle.Render("reacharm run"))
	return nil
}

type busInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: robot.DefaultBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

func scanBus(port string, maxID int) (busInfo, error) {
	bus, err := openBus(port)
	if err != nil {
		return busInfo{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	servos, err := bus.Scan(ctx, 1, maxID)
	if err != nil || len(servos) == 0 {
		bus.Close()
		if err == nil {
			err = errors.Errorf("no servos on %s", port)
		}
		return busInfo{}, err
	}
	return busInfo{port: port, servos: servos, bus: bus}, nil
}

// findBuses returns every serial port with at least one servo answering.
func findBuses(maxID int) []busInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var buses []busInfo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		info, err := scanBus(port, maxID)
		if err != nil {
			continue
		}
		fmt.Printf("  Found %d servo(s) on %s\n", len(info.servos), port)
		buses = append(buses, info)
	}
	return buses
}

func (c *SetupCommand) selectBus() (busInfo, error) {
	if c.Port != "" {
		return scanBus(c.Port, c.MaxID)
	}

	fmt.Println("Scanning for servo buses...")
	buses := findBuses(c.MaxID)
	switch len(buses) {
	case 0:
		return busInfo{}, errors.New("no servo bus found, check the adapter and power")
	case 1:
		return buses[0], nil
	}

	options := make([]huh.Option[int], 0, len(buses))
	for i, b := range buses {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%d servos)", b.port, len(b.servos)), i))
	}
	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which bus drives the appendage?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	for i, b := range buses {
		if i != choice {
			b.bus.Close()
		}
	}
	return buses[choice], nil
}

// bindServos wiggles each servo in turn and asks which device it is.
func bindServos(found busInfo) (robot.Bindings, error) {
	bindings := robot.Bindings{}
	for _, s := range found.servos {
		remaining := unbound(bindings)
		if len(remaining) == 0 {
			break
		}

		servo := feetech.NewServo(found.bus, s.ID, s.Model)
		if err := wiggle(servo); err != nil {
			fmt.Printf("  Servo %d: %v\n", s.ID, err)
			continue
		}

		options := make([]huh.Option[string], 0, len(remaining)+1)
		for _, d := range remaining {
			options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", d.name, d.hint), d.name))
		}
		options = append(options, huh.NewOption("Skip this servo", ""))

		var name string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("Which device is servo %d?", s.ID)).
					Description("The servo that just wiggled").
					Options(options...).
					Value(&name),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Println()
			os.Exit(0)
		}
		if name == "" {
			continue
		}
		for _, d := range busDevices {
			if d.name == name {
				bindings[name] = robot.Binding{
					Kind:             d.kind.String(),
					MotorCalibration: robot.MotorCalibration{ID: s.ID},
				}
			}
		}
	}
	return bindings, nil
}

func unbound(b robot.Bindings) []busDevice {
	var out []busDevice
	for _, d := range busDevices {
		if _, ok := b[d.name]; !ok {
			out = append(out, d)
		}
	}
	return out
}

func wiggle(servo *feetech.Servo) error {
	ctx := context.Background()
	originalPos, err := servo.Position(ctx)
	if err != nil {
		return errors.Wrap(err, "read position")
	}
	if err := servo.Enable(ctx); err != nil {
		return errors.Wrap(err, "enable")
	}
	defer servo.Disable(ctx)

	wiggleAmount := 30
	moveTimeMs := 500
	for _, pos := range []int{originalPos + wiggleAmount, originalPos - wiggleAmount, originalPos} {
		servo.SetPositionWithTime(ctx, pos, moveTimeMs)
		time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	}
	return nil
}

// calibrate reopens the port as a bound bus, releases torque and records
// the range the user moves each device through.
func calibrate(port string, bindings robot.Bindings, logger *zap.SugaredLogger) error {
	ctx := context.Background()
	bus, err := robot.Open(ctx, robot.Config{Port: port, Devices: bindings}, logger)
	if err != nil {
		return err
	}
	defer bus.Close()
	if err := bus.Release(ctx); err != nil {
		return err
	}

	fmt.Println("Move the slide, arm and wrist to both ends of their travel.")
	fmt.Println("Rollers only need a starting position; any range will do.")
	fmt.Println()

	model := newCalibrationModel(bindings, bus)
	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		return errors.Wrap(err, "run calibration")
	}
	cm := finalModel.(calibrationModel)
	for name, b := range cm.bindings {
		bindings[name] = b
	}
	return nil
}

// positionSource reads every bound device in one pass, keyed by name.
type positionSource interface {
	Positions(ctx context.Context) (map[string]int, error)
}

type calibrationModel struct {
	names    []string
	source   positionSource
	current  map[string]int
	bindings robot.Bindings
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(bindings robot.Bindings, source positionSource) calibrationModel {
	return calibrationModel{
		names:    bindings.Names(),
		source:   source,
		current:  map[string]int{},
		bindings: bindings,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.sample(context.Background())
		return m, tick()
	}

	return m, nil
}

// sample reads all devices in one sync read and widens their recorded
// ranges. A failed read is skipped; the next tick tries again.
func (m calibrationModel) sample(ctx context.Context) {
	positions, err := m.source.Positions(ctx)
	if err != nil {
		return
	}
	for _, name := range m.names {
		pos, ok := positions[name]
		if !ok {
			continue
		}
		m.current[name] = pos
		b := m.bindings[name]
		b.Record(pos)
		m.bindings[name] = b
	}
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.names))
	ranges := make([]int, 0, len(m.names))
	for _, name := range m.names {
		b := m.bindings[name]
		rangeSize := b.RangeMax - b.RangeMin
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			name,
			b.Kind,
			fmt.Sprintf("%d", b.ID),
			fmt.Sprintf("%d", m.current[name]),
			fmt.Sprintf("%d", b.RangeMin),
			fmt.Sprintf("%d", b.RangeMax),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Device", "Kind", "ID", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableNameStyle
			case 3:
				return tableCurrentStyle
			case 6:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}

