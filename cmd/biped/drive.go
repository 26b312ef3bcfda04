package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"go.bug.st/serial"

	"github.com/AhmedElnaggar-275/Robot/pkg/link"
	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

type DriveCommand struct {
	Port string `short:"p" long:"port" description:"Serial port of the robot (asks if omitted)"`
	Baud int    `long:"baud" default:"115200" description:"Baud rate"`
}

// The robot ignores repeats, so resending keeps a dropped byte from
// stranding it without costing anything.
const resendInterval = 500 * time.Millisecond

var driveKeys = map[string]locomotion.Command{
	"w": locomotion.Forward, "up": locomotion.Forward,
	"a": locomotion.RotateLeft, "left": locomotion.RotateLeft,
	"d": locomotion.RotateRight, "right": locomotion.RotateRight,
	"s": locomotion.Stop, " ": locomotion.Stop, "down": locomotion.Stop,
}

func (c *DriveCommand) Execute(args []string) error {
	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	port := c.Port
	if port == "" {
		port, err = choosePort("Which port is the robot on?")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	conn, err := link.Dial(port, c.Baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// Always leave the robot stopped.
	defer link.Send(conn, locomotion.Stop)

	m := driveModel{conn: conn, port: port, command: locomotion.Stop}
	if err := link.Send(conn, locomotion.Stop); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	if _, err := tea.NewProgram(m).Run(); err != nil {
		return fmt.Errorf("drive: %w", err)
	}
	return nil
}

// choosePort asks the user to pick one of the serial ports.
func choosePort(title string) (string, error) {
	ports, err := link.Ports()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}

	var options []huh.Option[string]
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return port, nil
}

type driveModel struct {
	conn    serial.Port
	port    string
	command locomotion.Command
	sent    int
	err     error
}

type resendMsg time.Time

func resend() tea.Cmd {
	return tea.Tick(resendInterval, func(t time.Time) tea.Msg {
		return resendMsg(t)
	})
}

func (m driveModel) Init() tea.Cmd {
	return resend()
}

func (m driveModel) send() driveModel {
	if err := link.Send(m.conn, m.command); err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.sent++
	return m
}

func (m driveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		if cmd, ok := driveKeys[msg.String()]; ok {
			m.command = cmd
			return m.send(), nil
		}

	case resendMsg:
		return m.send(), resend()
	}
	return m, nil
}

func (m driveModel) View() string {
	s := titleStyle.Render("Biped Drive") + statusStyle.Render("  "+m.port) + "\n\n"
	s += fmt.Sprintf("  Command: %s\n", okStyle.Render(m.command.String()))
	s += statusStyle.Render(fmt.Sprintf("  Bytes sent: %d", m.sent)) + "\n"
	if m.err != nil {
		s += alertStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n"
	}
	s += "\n" + statusStyle.Render("w/↑ forward  a/← left  d/→ right  s/space stop  q quit") + "\n"
	return s
}
