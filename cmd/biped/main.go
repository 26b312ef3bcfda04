package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/AhmedElnaggar-275/Robot/pkg/robot"
)

type Options struct {
	LogLevel string `long:"log-level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFile  string `long:"log-file" description:"Write logs to this file instead of stderr"`
	Config   string `short:"c" long:"config" description:"Configuration file"`

	Setup SetupCommand `command:"setup" description:"Find the servos, calibrate the legs and pick the command port"`
	Walk  WalkCommand  `command:"walk" description:"Run the control loop"`
	Drive DriveCommand `command:"drive" description:"Send motion commands to a robot from the keyboard"`
}

var opts = Options{Config: robot.DefaultConfigFile}
var parser = flags.NewParser(&opts, flags.Default)

// setupLogging applies the global logging options. It returns a function that
// closes the log file, if one was opened.
func setupLogging() (func(), error) {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	if opts.LogFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return func() { f.Close() }, nil
}

func main() {
	parser.LongDescription = "Biped - control loop and tools for a two-legged walking robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
