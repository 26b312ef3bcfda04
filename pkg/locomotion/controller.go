package locomotion

import (
	"time"
)

// Config holds the tunables of the kernel. Zero values select the defaults.
type Config struct {
	Timing    Timing
	Threshold float64

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Status is a snapshot of the kernel after a tick. RotatePhase is nil unless
// the command is a rotation.
type Status struct {
	Command      Command      `json:"command"`
	Moving       bool         `json:"moving"`
	WalkPhase    WalkPhase    `json:"walk_phase"`
	RotatePhase  *RotatePhase `json:"rotate_phase,omitempty"`
	Distance     float64      `json:"distance"`
	ObstacleNear bool         `json:"obstacle_near"`
	Right        Angle        `json:"right"`
	Left         Angle        `json:"left"`
}

// Controller runs one control iteration per Tick: read pending input, consult
// the interlock, then advance whichever gait is authoritative. It is not safe
// for concurrent use; a single goroutine must own it.
type Controller struct {
	legs      *posture
	ranger    Ranger
	source    Source
	interlock Interlock
	arbiter   *Arbiter
	clock     func() time.Time

	distance float64
	obstacle bool
}

// New builds a controller around the three hardware capabilities. The legs
// are assumed to be at neutral; call Halt first if that is not known.
func New(legs Actuators, ranger Ranger, source Source, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	p := newPosture(legs)
	return &Controller{
		legs:      p,
		ranger:    ranger,
		source:    source,
		interlock: Interlock{Threshold: cfg.Threshold},
		arbiter:   newArbiter(p, cfg.Timing),
		clock:     cfg.Clock,
		distance:  NoEcho,
	}
}

// Tick runs one iteration at the controller's clock.
func (c *Controller) Tick() {
	c.TickAt(c.clock())
}

// TickAt runs one iteration at now. Input is resolved before the interlock,
// and the interlock before dispatch; that order is what lets an obstacle
// override whatever arrived on the same tick.
func (c *Controller) TickAt(now time.Time) {
	if b, ok := c.source.Poll(); ok {
		if cmd, ok := ParseCommand(b); ok {
			c.arbiter.Accept(cmd, now)
		}
	}

	c.distance = c.ranger.Distance()
	near := c.interlock.ObstacleNear(c.distance)
	if near != c.obstacle {
		if near {
			log.Infof("obstacle at %.1fcm, stopping", c.distance)
		} else {
			log.Infof("obstacle cleared")
		}
		c.obstacle = near
	}
	log.Debugf("distance=%.1f", c.distance)

	c.arbiter.Override(near, now)
	c.arbiter.Dispatch(now)
}

// Halt commands both legs to neutral. The pilot calls it before the first
// tick and after the last.
func (c *Controller) Halt() {
	c.arbiter.Halt()
}

// Command returns the authoritative command.
func (c *Controller) Command() Command {
	return c.arbiter.Command()
}

// Moving returns the motion flag.
func (c *Controller) Moving() bool {
	return c.legs.Moving()
}

// Arbiter exposes the arbiter for inspection.
func (c *Controller) Arbiter() *Arbiter {
	return c.arbiter
}

// Status returns a snapshot of the last tick.
func (c *Controller) Status() Status {
	s := Status{
		Command:      c.arbiter.Command(),
		Moving:       c.legs.Moving(),
		WalkPhase:    c.arbiter.Walk().Phase(),
		Distance:     c.distance,
		ObstacleNear: c.obstacle,
		Right:        c.legs.angles[RightLeg],
		Left:         c.legs.angles[LeftLeg],
	}
	if g := c.arbiter.Rotation(s.Command); g != nil {
		phase := g.Phase()
		s.RotatePhase = &phase
	}
	return s
}
