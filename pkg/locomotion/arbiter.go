package locomotion

import "time"

// Arbiter owns the authoritative command and the gait machines it selects
// between. Every change of command while a leg is extended goes through a
// full stop first, so two gaits never share a stroke.
type Arbiter struct {
	legs    *posture
	command Command

	walk        *WalkGait
	rotateLeft  *RotateGait
	rotateRight *RotateGait
}

// newArbiter returns an arbiter with no command. It shares p with the
// controller so both see the same motion flag.
func newArbiter(p *posture, timing Timing) *Arbiter {
	return &Arbiter{
		legs:        p,
		command:     Unset,
		walk:        NewWalkGait(timing),
		rotateLeft:  NewRotateGait(RightLeg, timing),
		rotateRight: NewRotateGait(LeftLeg, timing),
	}
}

// Command returns the authoritative command.
func (a *Arbiter) Command() Command {
	return a.command
}

// Moving reports the motion flag: whether either leg is away from neutral.
func (a *Arbiter) Moving() bool {
	return a.legs.Moving()
}

// Walk returns the walking gait.
func (a *Arbiter) Walk() *WalkGait {
	return a.walk
}

// Rotation returns the gait that executes cmd, or nil if cmd is not a
// rotation.
func (a *Arbiter) Rotation(cmd Command) *RotateGait {
	switch cmd {
	case RotateLeft:
		return a.rotateLeft
	case RotateRight:
		return a.rotateRight
	}
	return nil
}

// Accept proposes cmd as the new authoritative command. A repeat of the
// current command is ignored so it does not restart the gait. It returns
// whether the command changed.
func (a *Arbiter) Accept(cmd Command, now time.Time) bool {
	if cmd == a.command {
		return false
	}

	prev := a.command
	a.command = cmd
	if a.legs.Moving() {
		a.halt()
	}

	switch cmd {
	case Forward:
		a.walk.Reset(now)
	case RotateLeft, RotateRight:
		a.Rotation(cmd).Reset(now)
	}

	log.Debugf("command %v -> %v", prev, cmd)
	return true
}

// Override forces Stop while an obstacle is near. It must run after Accept
// on every tick, not just when the obstacle first appears.
func (a *Arbiter) Override(obstacleNear bool, now time.Time) bool {
	if !obstacleNear {
		return false
	}
	return a.Accept(Stop, now)
}

// Dispatch advances the gait selected by the authoritative command. Stop and
// Unset only write when a leg is still extended, so a stopped robot sees no
// traffic.
func (a *Arbiter) Dispatch(now time.Time) {
	switch a.command {
	case Forward:
		a.walk.Step(now, a.legs)
	case RotateLeft:
		a.rotateLeft.Step(now, a.legs)
	case RotateRight:
		a.rotateRight.Step(now, a.legs)
	default:
		if a.legs.Moving() {
			a.halt()
		}
	}
}

// Halt commands both legs to neutral regardless of the motion flag. It does
// not change the authoritative command.
func (a *Arbiter) Halt() {
	a.halt()
}

func (a *Arbiter) halt() {
	a.legs.neutral()
	log.Infof("full stop (command=%v)", a.command)
}
