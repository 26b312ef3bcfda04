// Package biped drives a two-legged walking robot: one hip servo per leg, an
// ultrasonic range sensor in front, and single-byte motion commands arriving
// over a serial link.
//
// # Installation
//
//	go install github.com/AhmedElnaggar-275/Robot/cmd/biped@latest
//
// # Usage
//
// First, run setup to find the servos, calibrate the legs and pick the
// command port:
//
//	biped setup
//
// Then start the control loop:
//
//	biped walk
//
// Without hardware, walk in simulation and steer from the keyboard:
//
//	biped walk --sim
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/biped: CLI with setup, walk and drive commands
//   - pkg/locomotion: Gaits, command arbitration and the obstacle interlock
//   - pkg/pilot: Fixed-rate control loop around the locomotion controller
//   - pkg/robot: Leg servos, calibration, and configuration
//   - pkg/ranging: HC-SR04 ultrasonic range sensor
//   - pkg/link: Serial command link
//   - pkg/telemetry: WebSocket state feed
//   - pkg/fake: In-memory legs, sensor, command source and clock for tests
package biped
