package locomotion

import (
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "locomotion",
})

const (
	DefaultStroke = 500 * time.Millisecond
	DefaultPause  = 250 * time.Millisecond
)

// Timing holds the phase durations shared by both gaits. A stroke is the time
// a leg holds its extended angle; a pause is the rest before the next stroke.
type Timing struct {
	Stroke time.Duration
	Pause  time.Duration
}

// DefaultTiming returns the 500ms stroke / 250ms pause timing.
func DefaultTiming() Timing {
	return Timing{Stroke: DefaultStroke, Pause: DefaultPause}
}

// orDefault fills unset durations from DefaultTiming.
func (t Timing) orDefault() Timing {
	if t.Stroke <= 0 {
		t.Stroke = DefaultStroke
	}
	if t.Pause <= 0 {
		t.Pause = DefaultPause
	}
	return t
}

// Cycle returns the time a full walking double-step takes.
func (t Timing) Cycle() time.Duration {
	t = t.orDefault()
	return 2 * (t.Stroke + t.Pause)
}

// WalkPhase is the state of the walking gait.
type WalkPhase int

const (
	LeftPaused WalkPhase = iota
	RightStroking
	RightPaused
	LeftStroking
)

func (p WalkPhase) String() string {
	switch p {
	case LeftPaused:
		return "left_paused"
	case RightStroking:
		return "right_stroking"
	case RightPaused:
		return "right_paused"
	case LeftStroking:
		return "left_stroking"
	}
	return "unknown"
}

func (p WalkPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// WalkGait alternates forward strokes of the right and left legs.
type WalkGait struct {
	timing Timing
	phase  WalkPhase
	since  time.Time
}

// NewWalkGait returns a walking gait in LeftPaused, timed from the zero time.
// Call Reset before the first Step.
func NewWalkGait(timing Timing) *WalkGait {
	return &WalkGait{timing: timing.orDefault()}
}

// Reset puts the gait back in LeftPaused, so the next stroke is the right leg,
// and restarts the phase timer at now.
func (g *WalkGait) Reset(now time.Time) {
	g.phase = LeftPaused
	g.since = now
}

// Phase returns the current phase.
func (g *WalkGait) Phase() WalkPhase {
	return g.phase
}

func (g *WalkGait) duration() time.Duration {
	if g.phase == RightStroking || g.phase == LeftStroking {
		return g.timing.Stroke
	}
	return g.timing.Pause
}

// Step advances the gait by one phase if the current phase has run its
// course, issuing the write that goes with the transition. It returns false,
// having changed nothing, when called too early.
func (g *WalkGait) Step(now time.Time, legs Actuators) bool {
	if now.Sub(g.since) < g.duration() {
		return false
	}

	switch g.phase {
	case LeftPaused:
		legs.SetAngle(RightLeg, RightLeg.Extend())
		g.phase = RightStroking
	case RightStroking:
		legs.SetAngle(RightLeg, Neutral)
		g.phase = RightPaused
	case RightPaused:
		legs.SetAngle(LeftLeg, LeftLeg.Extend())
		g.phase = LeftStroking
	case LeftStroking:
		legs.SetAngle(LeftLeg, Neutral)
		g.phase = LeftPaused
	}

	g.since = now
	log.Debugf("walk phase=%v", g.phase)
	return true
}

// RotatePhase is the state of a rotating gait.
type RotatePhase int

const (
	Paused RotatePhase = iota
	Stroking
)

func (p RotatePhase) String() string {
	switch p {
	case Paused:
		return "paused"
	case Stroking:
		return "stroking"
	}
	return "unknown"
}

func (p RotatePhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// RotateGait pivots the robot by stroking a single leg while the other stays
// at neutral. Stroking the right leg turns the robot left, and vice versa.
type RotateGait struct {
	pivot  Leg
	timing Timing
	phase  RotatePhase
	since  time.Time
}

func NewRotateGait(pivot Leg, timing Timing) *RotateGait {
	return &RotateGait{
		pivot:  pivot,
		timing: timing.orDefault(),
	}
}

// Pivot returns the leg this gait strokes.
func (g *RotateGait) Pivot() Leg {
	return g.pivot
}

func (g *RotateGait) Reset(now time.Time) {
	g.phase = Paused
	g.since = now
}

func (g *RotateGait) Phase() RotatePhase {
	return g.phase
}

func (g *RotateGait) duration() time.Duration {
	if g.phase == Stroking {
		return g.timing.Stroke
	}
	return g.timing.Pause
}

// Step behaves like WalkGait.Step for the two rotate phases.
func (g *RotateGait) Step(now time.Time, legs Actuators) bool {
	if now.Sub(g.since) < g.duration() {
		return false
	}

	switch g.phase {
	case Paused:
		legs.SetAngle(g.pivot, g.pivot.Extend())
		g.phase = Stroking
	case Stroking:
		legs.SetAngle(g.pivot, Neutral)
		g.phase = Paused
	}

	g.since = now
	log.Debugf("rotate pivot=%v phase=%v", g.pivot, g.phase)
	return true
}
