package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

// DefaultConfigFile is where setup writes and walk reads by default.
const DefaultConfigFile = "biped.json"

const (
	DefaultHz           = 100
	DefaultLinkBaud     = 115200
	DefaultTrigPin      = 23
	DefaultEchoPin      = 24
	DefaultEchoTimeoutU = 2300
)

// Config holds the robot configuration
type Config struct {
	Servos  ServoConfig   `json:"servos"`
	Link    LinkConfig    `json:"link"`
	Ranging RangingConfig `json:"ranging"`
	Gait    GaitConfig    `json:"gait"`
	Hz      int           `json:"hz,omitempty"`
}

// ServoConfig holds the servo bus and leg calibration
type ServoConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// LinkConfig holds the serial port the command stream arrives on
type LinkConfig struct {
	Port string `json:"port"`
	Baud int    `json:"baud,omitempty"`
}

// RangingConfig holds the ultrasonic sensor wiring (BCM pin numbers)
type RangingConfig struct {
	TrigPin       int `json:"trig_pin"`
	EchoPin       int `json:"echo_pin"`
	EchoTimeoutUS int `json:"echo_timeout_us,omitempty"`
}

// GaitConfig holds the gait timing and the obstacle threshold
type GaitConfig struct {
	StrokeMS    int     `json:"stroke_ms,omitempty"`
	PauseMS     int     `json:"pause_ms,omitempty"`
	ThresholdCM float64 `json:"threshold_cm,omitempty"`
}

// DefaultConfig returns a configuration with every default filled in and no
// ports chosen.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{Baud: DefaultLinkBaud},
		Ranging: RangingConfig{
			TrigPin:       DefaultTrigPin,
			EchoPin:       DefaultEchoPin,
			EchoTimeoutUS: DefaultEchoTimeoutU,
		},
		Gait: GaitConfig{
			StrokeMS:    int(locomotion.DefaultStroke / time.Millisecond),
			PauseMS:     int(locomotion.DefaultPause / time.Millisecond),
			ThresholdCM: locomotion.DefaultThreshold,
		},
		Hz: DefaultHz,
	}
}

// IsCalibrated returns true if the servos have calibration data
func (s *ServoConfig) IsCalibrated() bool {
	return len(s.Calibration) > 0
}

// Timing returns the gait timing; unset fields fall back to the defaults.
func (g GaitConfig) Timing() locomotion.Timing {
	return locomotion.Timing{
		Stroke: time.Duration(g.StrokeMS) * time.Millisecond,
		Pause:  time.Duration(g.PauseMS) * time.Millisecond,
	}
}

// EchoTimeout returns the longest echo pulse the sensor waits for.
func (r RangingConfig) EchoTimeout() time.Duration {
	if r.EchoTimeoutUS <= 0 {
		return DefaultEchoTimeoutU * time.Microsecond
	}
	return time.Duration(r.EchoTimeoutUS) * time.Microsecond
}

// LoopHz returns the control loop rate.
func (c *Config) LoopHz() int {
	if c.Hz <= 0 {
		return DefaultHz
	}
	return c.Hz
}

// Validate checks the settings needed to drive real hardware.
func (c *Config) Validate() error {
	if c.Servos.Port == "" {
		return fmt.Errorf("servo port not configured")
	}
	if err := c.Servos.Calibration.Validate(); err != nil {
		return fmt.Errorf("servo calibration: %w", err)
	}
	if c.Ranging.TrigPin == c.Ranging.EchoPin {
		return fmt.Errorf("trig and echo share pin %d", c.Ranging.TrigPin)
	}
	if c.Gait.StrokeMS < 0 || c.Gait.PauseMS < 0 {
		return fmt.Errorf("negative gait timing")
	}
	return nil
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
