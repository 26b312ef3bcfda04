// Package pilot runs the biped's control loop.
package pilot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "pilot",
})

const DefaultHz = 100

// State is a snapshot of the robot after one tick.
type State struct {
	locomotion.Status
	Timestamp time.Time `json:"timestamp"`
}

// Pilot owns the locomotion controller and ticks it from a single goroutine.
type Pilot struct {
	ctrl *locomotion.Controller
	hz   int

	mu          sync.RWMutex
	running     bool
	last        State
	subscribers []func(State)
	stateCh     chan State
	logCh       chan string
}

// Config holds configuration for the pilot.
type Config struct {
	Hz        int
	Timing    locomotion.Timing
	Threshold float64
	Clock     func() time.Time
}

// New creates a pilot driving legs from the commands in source, stopping for
// obstacles reported by ranger.
func New(legs locomotion.Actuators, ranger locomotion.Ranger, source locomotion.Source, cfg Config) *Pilot {
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}

	p := &Pilot{
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
	if l, ok := source.(Link); ok {
		source = &watchedLink{Link: l, pilot: p}
	}
	p.ctrl = locomotion.New(legs, ranger, source, locomotion.Config{
		Timing:    cfg.Timing,
		Threshold: cfg.Threshold,
		Clock:     cfg.Clock,
	})
	return p
}

// Link is a command source that can fail, such as a serial link.
type Link interface {
	locomotion.Source
	// Err returns the error that ended the stream, or nil while it is up.
	Err() error
	// Dropped returns how many bytes were discarded so far.
	Dropped() int
}

// watchedLink reports drops and turns a lost link into a single Stop once
// the bytes received before the loss have been drained.
type watchedLink struct {
	Link
	pilot   *Pilot
	dropped int
	lost    bool
}

func (w *watchedLink) Poll() (byte, bool) {
	if n := w.Dropped(); n > w.dropped {
		w.pilot.log("Dropped %d command byte(s)", n-w.dropped)
		w.dropped = n
	}

	if b, ok := w.Link.Poll(); ok {
		return b, true
	}
	if w.lost {
		return 0, false
	}
	if err := w.Err(); err != nil {
		w.lost = true
		w.pilot.log("Command link lost (%v): stopping", err)
		return locomotion.Stop.Byte(), true
	}
	return 0, false
}

// States returns a channel that receives state updates. Only the latest state
// is kept; readers that fall behind skip ahead.
func (p *Pilot) States() <-chan State {
	return p.stateCh
}

// Logs returns a channel that receives log messages.
func (p *Pilot) Logs() <-chan string {
	return p.logCh
}

// Subscribe registers fn to be called with every state, on the loop
// goroutine. fn must not block.
func (p *Pilot) Subscribe(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Hz returns the control frequency.
func (p *Pilot) Hz() int {
	return p.hz
}

// Last returns the most recent state.
func (p *Pilot) Last() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Running reports whether the loop is active.
func (p *Pilot) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Pilot) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Info(text)

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case p.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the control loop until ctx is cancelled. The legs are put at
// neutral before the first tick and after the last.
func (p *Pilot) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("already running")
	}
	p.running = true
	p.mu.Unlock()

	p.ctrl.Halt()
	p.log("Control loop started at %d Hz", p.hz)

	ticker := time.NewTicker(time.Second / time.Duration(p.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()
		case <-ticker.C:
			p.Step()
		}
	}
}

// Step runs a single tick and publishes the resulting state. Start calls it
// from the ticker; tests call it directly.
func (p *Pilot) Step() {
	before := p.ctrl.Status()
	p.ctrl.Tick()
	after := p.ctrl.Status()

	if after.ObstacleNear && !before.ObstacleNear {
		p.log("Obstacle at %.1f cm: stopping", after.Distance)
	} else if before.ObstacleNear && !after.ObstacleNear {
		p.log("Path clear")
	}
	if after.Command != before.Command && !after.ObstacleNear {
		p.log("Command: %v", after.Command)
	}

	p.publish(State{
		Status:    after,
		Timestamp: time.Now(),
	})
}

func (p *Pilot) publish(s State) {
	p.mu.Lock()
	p.last = s
	subscribers := p.subscribers
	p.mu.Unlock()

	for _, fn := range subscribers {
		fn(s)
	}
	p.sendState(s)
}

func (p *Pilot) sendState(s State) {
	select {
	case p.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-p.stateCh:
		default:
		}
		select {
		case p.stateCh <- s:
		default:
		}
	}
}

func (p *Pilot) shutdown() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.ctrl.Halt()
	p.publish(State{
		Status:    p.ctrl.Status(),
		Timestamp: time.Now(),
	})
	p.log("Control loop stopped")
}
