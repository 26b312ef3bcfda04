// Package ranging reads an HC-SR04 style ultrasonic sensor on Raspberry Pi
// GPIO.
package ranging

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	rpio "github.com/stianeikeland/go-rpio/v4"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "ranging",
})

const (
	// DefaultEchoTimeout bounds the echo pulse, which caps the range at
	// about 39cm. Anything further reads as NoEcho.
	DefaultEchoTimeout = 2300 * time.Microsecond

	// Time allowed for the echo line to go high after the trigger.
	riseTimeout = time.Millisecond

	// Speed of sound in cm/µs.
	soundSpeed = 0.0343
)

type outputPin interface {
	High()
	Low()
}

type inputPin interface {
	Read() rpio.State
}

// HCSR04 is a pulse-echo ranging sensor. Distance never blocks for longer
// than the rise and echo timeouts combined.
type HCSR04 struct {
	trig    outputPin
	echo    inputPin
	timeout time.Duration

	now   func() time.Time
	delay func(time.Duration)
}

// Open maps the GPIO memory and configures the trigger and echo pins (BCM
// numbering).
func Open(trigPin, echoPin int, timeout time.Duration) (*HCSR04, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	trig := rpio.Pin(trigPin)
	trig.Output()
	trig.Low()

	echo := rpio.Pin(echoPin)
	echo.Input()

	log.Infof("ultrasonic on trig=%d echo=%d", trigPin, echoPin)
	return newHCSR04(trig, echo, timeout), nil
}

func newHCSR04(trig outputPin, echo inputPin, timeout time.Duration) *HCSR04 {
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	return &HCSR04{
		trig:    trig,
		echo:    echo,
		timeout: timeout,
		now:     time.Now,
		delay:   spin,
	}
}

// Close unmaps the GPIO memory.
func (s *HCSR04) Close() error {
	return rpio.Close()
}

// Distance fires one ping and returns the distance in centimetres, or
// locomotion.NoEcho if the echo does not start or end in time.
func (s *HCSR04) Distance() float64 {
	s.trig.Low()
	s.delay(2 * time.Microsecond)
	s.trig.High()
	s.delay(10 * time.Microsecond)
	s.trig.Low()

	deadline := s.now().Add(riseTimeout)
	for s.echo.Read() == rpio.Low {
		if s.now().After(deadline) {
			return locomotion.NoEcho
		}
	}

	start := s.now()
	for s.echo.Read() == rpio.High {
		if s.now().Sub(start) > s.timeout {
			return locomotion.NoEcho
		}
	}

	return EchoDistance(s.now().Sub(start))
}

// EchoDistance converts the echo pulse width to a distance in centimetres.
// The pulse covers the round trip, hence the halving.
func EchoDistance(pulse time.Duration) float64 {
	us := float64(pulse) / float64(time.Microsecond)
	return us * soundSpeed / 2
}

// spin busy-waits; time.Sleep cannot resolve microseconds.
func spin(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
