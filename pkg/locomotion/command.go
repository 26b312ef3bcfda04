// Package locomotion implements the walking kernel of the biped: the gait
// state machines, the command arbiter with its obstacle interlock, and the
// per-iteration Tick that ties them together.
//
// Nothing in this package blocks. Every gait advances by at most one phase per
// tick, and only once the current phase has lasted long enough, so the caller
// can tick as fast as it likes.
package locomotion

// Command is the motion mode the arbiter honours.
type Command int

const (
	Unset Command = iota
	Forward
	RotateLeft
	RotateRight
	Stop
)

var commandNames = map[Command]string{
	Unset:       "unset",
	Forward:     "forward",
	RotateLeft:  "rotate_left",
	RotateRight: "rotate_right",
	Stop:        "stop",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets Command appear by name in JSON telemetry.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCommand maps a byte received on the command link to a Command. Bytes
// that are not commands, including line endings, return ok=false.
func ParseCommand(b byte) (cmd Command, ok bool) {
	switch b {
	case 'F':
		return Forward, true
	case 'L':
		return RotateLeft, true
	case 'R':
		return RotateRight, true
	case 'S':
		return Stop, true
	}
	return Unset, false
}

// Byte returns the wire byte for c, or 0 for Unset.
func (c Command) Byte() byte {
	switch c {
	case Forward:
		return 'F'
	case RotateLeft:
		return 'L'
	case RotateRight:
		return 'R'
	case Stop:
		return 'S'
	}
	return 0
}
