// Package robot provides the hardware side of the biped: leg servos on a
// feetech bus, their calibration, and the configuration file.
package robot

import "github.com/AhmedElnaggar-275/Robot/pkg/locomotion"

// LegName identifies a leg servo in the configuration file.
type LegName string

const (
	RightLeg LegName = "right_leg"
	LeftLeg  LegName = "left_leg"
)

// AllLegs returns all leg names in actuator order.
func AllLegs() []LegName {
	return []LegName{
		RightLeg,
		LeftLeg,
	}
}

// NameOf returns the configuration name of a kernel leg.
func NameOf(leg locomotion.Leg) LegName {
	if leg == locomotion.RightLeg {
		return RightLeg
	}
	return LeftLeg
}
