package locomotion

import "fmt"

// Leg identifies one of the two leg actuators.
type Leg int

const (
	RightLeg Leg = iota
	LeftLeg
)

// Legs returns both legs in actuator order.
func Legs() []Leg {
	return []Leg{RightLeg, LeftLeg}
}

func (l Leg) String() string {
	switch l {
	case RightLeg:
		return "right"
	case LeftLeg:
		return "left"
	}
	return fmt.Sprintf("leg(%d)", int(l))
}

// Angle is an actuator command in degrees.
type Angle int

const (
	Neutral Angle = 90
)

// Extend returns the forward-extend angle of the leg. The actuators are
// mounted mirrored: the right one reads 0° as forward, the left one 180°.
func (l Leg) Extend() Angle {
	if l == RightLeg {
		return 0
	}
	return 180
}

// Actuators accepts open-loop angle writes. Implementations must not block
// and have nothing to report back; failures are theirs to log.
type Actuators interface {
	SetAngle(leg Leg, angle Angle)
}

// Ranger returns a distance in centimetres, or NoEcho when nothing came back
// within the sensor's own timeout.
type Ranger interface {
	Distance() float64
}

// Source yields at most one pending command byte per poll.
type Source interface {
	Poll() (b byte, ok bool)
}

// posture forwards writes to the actuators and remembers the last angle
// commanded to each leg, which is what the motion flag is derived from.
type posture struct {
	out    Actuators
	angles [2]Angle
}

func newPosture(out Actuators) *posture {
	return &posture{
		out:    out,
		angles: [2]Angle{Neutral, Neutral},
	}
}

func (p *posture) SetAngle(leg Leg, angle Angle) {
	p.out.SetAngle(leg, angle)
	p.angles[leg] = angle
}

// Moving reports whether any leg is away from neutral.
func (p *posture) Moving() bool {
	for _, a := range p.angles {
		if a != Neutral {
			return true
		}
	}
	return false
}

// neutral commands both legs to neutral unconditionally.
func (p *posture) neutral() {
	for _, leg := range Legs() {
		p.SetAngle(leg, Neutral)
	}
}
