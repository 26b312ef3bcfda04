package locomotion

// NoEcho is the ranging sample returned when no echo arrived in time.
const NoEcho = -1.0

// DefaultThreshold is the obstacle distance, in centimetres, at or below which
// the robot is forced to stop.
const DefaultThreshold = 15.0

// Interlock turns a ranging sample into the obstacle safety signal.
type Interlock struct {
	Threshold float64
}

// ObstacleNear reports whether sample is a valid reading within the
// threshold. A missing echo or a non-positive reading counts as clear: the
// sensor's range is shorter than open ground, so silence usually means far.
func (i Interlock) ObstacleNear(sample float64) bool {
	if !(sample > 0) {
		return false
	}
	return sample <= i.threshold()
}

func (i Interlock) threshold() float64 {
	if i.Threshold <= 0 {
		return DefaultThreshold
	}
	return i.Threshold
}
