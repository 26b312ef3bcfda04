package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/AhmedElnaggar-275/Robot/pkg/link"
	"github.com/AhmedElnaggar-275/Robot/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	MaxID int `long:"max-id" default:"20" description:"Highest servo ID to scan for"`
}

func (c *SetupCommand) Execute(args []string) error {
	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	fmt.Println(headerStyle.Render("Biped Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	// Keep gait and sensor settings from an earlier setup.
	config, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		config = robot.DefaultConfig()
	}

	// Step 1: Find the servo bus
	bus := findServoBus(c.MaxID)
	config.Servos.Port = bus.port

	// Step 2: Tell the legs apart
	right, left := identifyLegs(bus)
	bus.bus.Close()

	// Step 3: Calibrate each leg
	calibration := make(robot.Calibration)
	for _, leg := range []struct {
		name  robot.LegName
		servo feetech.FoundServo
	}{{robot.RightLeg, right}, {robot.LeftLeg, left}} {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Calibrating %s ━━━", legTitle(leg.name))))
		fmt.Println()
		calibration[leg.name] = calibrateLeg(bus.port, leg.name, leg.servo)
	}
	config.Servos.Calibration = calibration

	// Save after calibration
	if err := config.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	// Step 4: Command link
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Command Link ━━━"))
	fmt.Println()
	config.Link.Port = chooseLinkPort(bus.port)

	if err := config.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start walking with: " + headerStyle.Render("biped walk"))

	return nil
}

// legTitle turns "right_leg" into "Right leg".
func legTitle(name robot.LegName) string {
	s := strings.ReplaceAll(string(name), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type busInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

// findServoBus scans every serial port for feetech servos and returns the bus
// to use, asking when there is more than one candidate.
func findServoBus(maxID int) busInfo {
	fmt.Println("Scanning for servos...")
	fmt.Println()

	ports, err := link.Ports()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		os.Exit(1)
	}

	var buses []busInfo
	for _, port := range ports {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := robot.OpenBus(port)
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, maxID)
		cancel()

		if err != nil || len(servos) < 2 {
			bus.Close()
			continue
		}

		fmt.Printf("  Found %d servo(s) on %s\n", len(servos), port)
		buses = append(buses, busInfo{port: port, servos: servos, bus: bus})
	}

	if len(buses) == 0 {
		fmt.Println("No servo bus with at least two servos found.")
		fmt.Println("Make sure the legs are connected and powered on.")
		os.Exit(1)
	}
	if len(buses) == 1 {
		return buses[0]
	}

	var options []huh.Option[int]
	for i, b := range buses {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%d servos)", b.port, len(b.servos)), i))
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which bus are the legs on?").
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
	return buses[choice]
}

// identifyLegs wiggles each servo in turn and asks which leg moved.
func identifyLegs(bus busInfo) (right, left feetech.FoundServo) {
	for _, s := range bus.servos {
		role := identifyLegWithWiggle(bus, s, right.ID == 0, left.ID == 0)
		switch role {
		case robot.RightLeg:
			right = s
		case robot.LeftLeg:
			left = s
		}

		// If we have both, we can stop
		if right.ID != 0 && left.ID != 0 {
			break
		}
	}

	if right.ID == 0 || left.ID == 0 {
		fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
		fmt.Println("Both legs are required. Run setup again.")
		os.Exit(1)
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Legs identified:"))
	fmt.Printf("  Right: servo #%d\n", right.ID)
	fmt.Printf("  Left:  servo #%d\n", left.ID)
	return right, left
}

func identifyLegWithWiggle(bus busInfo, found feetech.FoundServo, needRight, needLeft bool) robot.LegName {
	ctx := context.Background()
	servo := feetech.NewServo(bus.bus, found.ID, found.Model)

	// Read current position
	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading servo #%d: %v\n", found.ID, err)
		return ""
	}

	// Enable torque for wiggle
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo #%d: %v\n", found.ID, err)
		return ""
	}

	fmt.Printf("\n  Wiggling servo #%d...\n", found.ID)

	// Wiggle: single gentle, slow movement
	wiggleAmount := 60
	moveTimeMs := 400
	servo.SetPositionWithTime(ctx, originalPos+wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos-wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	// Return to original position
	servo.SetPositionWithTime(ctx, originalPos, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	servo.Disable(ctx)

	// Build options based on what's still needed
	var options []huh.Option[string]
	if needRight {
		options = append(options, huh.NewOption("Right leg", string(robot.RightLeg)))
	}
	if needLeft {
		options = append(options, huh.NewOption("Left leg", string(robot.LeftLeg)))
	}
	options = append(options, huh.NewOption("Neither (skip)", "skip"))

	var role string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which leg moved (servo #%d)?", found.ID)).
				Description("The servo that just wiggled").
				Options(options...).
				Value(&role),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if role == "skip" {
		return ""
	}
	return robot.LegName(role)
}

// calibrateLeg records the travel of one leg and which end of it is forward.
// The right leg's forward end becomes 0°, the left leg's 180°.
func calibrateLeg(port string, name robot.LegName, found feetech.FoundServo) robot.LegCalibration {
	bus, err := robot.OpenBus(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to servos: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	ctx := context.Background()
	id := found.ID
	servo := feetech.NewServo(bus, found.ID, found.Model)

	// Disable the servo so the user can move the leg freely
	servo.Disable(ctx)

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Swing the leg fully forward AND fully back.")
	fmt.Println()

	pos, err := servo.Position(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading servo #%d: %v\n", id, err)
		os.Exit(1)
	}

	model := newCalibrationModel(name, servo, pos)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running calibration: %v\n", err)
		os.Exit(1)
	}
	cm := finalModel.(calibrationModel)

	waitForUser("Now hold the leg fully FORWARD.")
	forward, err := servo.Position(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading servo #%d: %v\n", id, err)
		os.Exit(1)
	}

	cal := legRange(name, cm.minPos, cm.maxPos, forward)
	cal.ID = id

	fmt.Printf("%s calibrated: 0° = %d, 180° = %d\n", legTitle(name), cal.Raw(0), cal.Raw(robot.MaxAngle))
	return cal
}

// legRange keeps the recorded travel ordered and picks the drive mode so that
// forward lands on the leg's forward-extend angle.
func legRange(name robot.LegName, lo, hi, forward int) robot.LegCalibration {
	forwardIsLow := abs(forward-lo) <= abs(forward-hi)

	// Right leg: forward is 0°, which is RangeMin in drive mode 0.
	// Left leg: forward is 180°, which is RangeMax in drive mode 0.
	cal := robot.LegCalibration{RangeMin: lo, RangeMax: hi}
	if (name == robot.RightLeg) != forwardIsLow {
		cal.DriveMode = 1
	}
	return cal
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func waitForUser(prompt string) {
	fmt.Println(prompt)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// chooseLinkPort asks which port the command stream arrives on. The servo
// bus port is not offered.
func chooseLinkPort(servoPort string) string {
	ports, err := link.Ports()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return ""
	}

	options := []huh.Option[string]{huh.NewOption("None (configure later)", "")}
	for _, p := range ports {
		if p == servoPort {
			continue
		}
		options = append(options, huh.NewOption(p, p))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port sends the F/L/R/S commands?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			os.Exit(0)
		}
		return ""
	}
	return port
}

// Calibration TUI model
type calibrationModel struct {
	name     robot.LegName
	servo    *feetech.Servo
	curPos   int
	minPos   int
	maxPos   int
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(name robot.LegName, servo *feetech.Servo, pos int) calibrationModel {
	return calibrationModel{
		name:   name,
		servo:  servo,
		curPos: pos,
		minPos: pos,
		maxPos: pos,
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
		pos, err := m.servo.Position(context.Background())
		if err == nil {
			m.curPos = pos
			m.minPos = min(m.minPos, pos)
			m.maxPos = max(m.maxPos, pos)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableLegStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rangeSize := m.maxPos - m.minPos
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Leg", "Current", "Min", "Max", "Range").
		Row(
			string(m.name),
			fmt.Sprintf("%d", m.curPos),
			fmt.Sprintf("%d", m.minPos),
			fmt.Sprintf("%d", m.maxPos),
			fmt.Sprintf("%d", rangeSize),
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableLegStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if rangeSize > 1000 {
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
