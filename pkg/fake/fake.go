// Package fake provides in-memory stand-ins for the biped's hardware, used by
// tests and by the simulator.
package fake

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "fake",
})

// Write is one recorded actuator command.
type Write struct {
	Leg   locomotion.Leg
	Angle locomotion.Angle
}

// Legs records every angle written to it.
type Legs struct {
	mu     sync.Mutex
	writes []Write
	angles map[locomotion.Leg]locomotion.Angle
}

func NewLegs() *Legs {
	return &Legs{
		angles: map[locomotion.Leg]locomotion.Angle{
			locomotion.RightLeg: locomotion.Neutral,
			locomotion.LeftLeg:  locomotion.Neutral,
		},
	}
}

func (l *Legs) SetAngle(leg locomotion.Leg, angle locomotion.Angle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, Write{leg, angle})
	l.angles[leg] = angle
	log.Debugf("%v leg -> %d", leg, angle)
}

// Writes returns a copy of every write so far.
func (l *Legs) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Angle returns the last angle written to leg.
func (l *Legs) Angle(leg locomotion.Leg) locomotion.Angle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.angles[leg]
}

// Neutral reports whether both legs were last commanded to neutral.
func (l *Legs) Neutral() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.angles {
		if a != locomotion.Neutral {
			return false
		}
	}
	return true
}

// Clear forgets recorded writes but keeps the current angles.
func (l *Legs) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = nil
}

// Ranger returns queued samples in order, then repeats the last one.
type Ranger struct {
	mu      sync.Mutex
	queue   []float64
	current float64
}

func NewRanger(distance float64) *Ranger {
	return &Ranger{current: distance}
}

// Set replaces the queue with a constant distance.
func (r *Ranger) Set(distance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
	r.current = distance
}

// Script queues samples to be returned one per call.
func (r *Ranger) Script(samples ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, samples...)
}

func (r *Ranger) Distance() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) > 0 {
		r.current = r.queue[0]
		r.queue = r.queue[1:]
	}
	return r.current
}

// Source hands out pushed bytes one per poll.
type Source struct {
	mu    sync.Mutex
	queue []byte
}

func NewSource(b ...byte) *Source {
	return &Source{queue: b}
}

func (s *Source) Push(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, b...)
}

func (s *Source) Poll() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return 0, false
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b, true
}

// Pending returns the number of bytes not yet polled.
func (s *Source) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
