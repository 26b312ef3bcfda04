package robot

import (
	"fmt"
	"math"
)

// MaxAngle is the top of the servo travel in degrees.
const MaxAngle = 180.0

// LegCalibration maps a leg servo's raw positions onto degrees. RangeMin is
// the raw position at 0° and RangeMax the raw position at 180°; drive mode 1
// swaps the two ends. Setup keeps the range ordered and records direction in
// DriveMode.
type LegCalibration struct {
	ID        int `json:"id"`
	DriveMode int `json:"drive_mode"`
	RangeMin  int `json:"range_min"`
	RangeMax  int `json:"range_max"`
}

// Calibration holds calibration data for both legs, keyed by leg name.
type Calibration map[LegName]LegCalibration

// Degrees converts a raw servo position to an angle in [0, 180]. A drive mode
// of 1 means the servo turns the other way.
func (c LegCalibration) Degrees(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	deg := float64(raw-c.RangeMin) / rangeSize * MaxAngle
	if c.DriveMode == 1 {
		deg = MaxAngle - deg
	}
	return deg
}

// Raw converts an angle in degrees to a raw servo position. Angles outside
// [0, 180] are clamped.
func (c LegCalibration) Raw(deg float64) int {
	if deg < 0 {
		deg = 0
	} else if deg > MaxAngle {
		deg = MaxAngle
	}
	if c.DriveMode == 1 {
		deg = MaxAngle - deg
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(deg/MaxAngle*rangeSize)) + c.RangeMin
}

// ServoIDs returns the servo IDs for all legs in the calibration.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllLegs() to ensure consistent ordering
	for _, name := range AllLegs() {
		if lc, ok := c[name]; ok {
			ids = append(ids, lc.ID)
		}
	}
	return ids
}

// ByID returns leg name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (LegName, LegCalibration, bool) {
	for name, lc := range c {
		if lc.ID == id {
			return name, lc, true
		}
	}
	return "", LegCalibration{}, false
}

// Validate checks that both legs are calibrated on distinct servos.
func (c Calibration) Validate() error {
	seen := make(map[int]LegName)
	for _, name := range AllLegs() {
		lc, ok := c[name]
		if !ok {
			return fmt.Errorf("%s not calibrated", name)
		}
		if lc.RangeMin == lc.RangeMax {
			return fmt.Errorf("%s has an empty range", name)
		}
		if other, dup := seen[lc.ID]; dup {
			return fmt.Errorf("%s and %s share servo ID %d", other, name, lc.ID)
		}
		seen[lc.ID] = name
	}
	return nil
}
