package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/sirupsen/logrus"

	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "robot",
})

const (
	busBaudRate  = 1_000_000
	busTimeout   = 100 * time.Millisecond
	writeTimeout = 20 * time.Millisecond
)

// Legs drives the two leg servos on a feetech bus. It implements
// locomotion.Actuators.
type Legs struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
}

// OpenBus opens a feetech STS bus on port.
func OpenBus(port string) (*feetech.Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: busBaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  busTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	return bus, nil
}

// NewLegs opens the servo bus and checks that both leg servos answer. A
// robot with a missing leg must not be driven at all.
func NewLegs(ctx context.Context, port string, cal Calibration) (*Legs, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	bus, err := OpenBus(port)
	if err != nil {
		return nil, err
	}

	if err := checkAttached(ctx, bus, cal); err != nil {
		bus.Close()
		return nil, err
	}

	ids := cal.ServoIDs()
	group := feetech.NewServoGroupByIDs(bus, ids...)

	return &Legs{
		bus:         bus,
		group:       group,
		calibration: cal,
	}, nil
}

func checkAttached(ctx context.Context, bus *feetech.Bus, cal Calibration) error {
	ids := cal.ServoIDs()
	lo, hi := ids[0], ids[0]
	for _, id := range ids {
		lo = min(lo, id)
		hi = max(hi, id)
	}

	found, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		return fmt.Errorf("scan servos: %w", err)
	}
	return missingLegs(cal, found)
}

// missingLegs reports the first leg whose servo is not among found.
func missingLegs(cal Calibration, found []feetech.FoundServo) error {
	present := make(map[int]bool, len(found))
	for _, s := range found {
		present[s.ID] = true
	}
	for _, name := range AllLegs() {
		if id := cal[name].ID; !present[id] {
			return fmt.Errorf("%s servo #%d not attached", name, id)
		}
	}
	return nil
}

// Close closes the bus connection.
func (l *Legs) Close() error {
	return l.bus.Close()
}

// Enable enables torque on both servos.
func (l *Legs) Enable(ctx context.Context) error {
	return l.group.EnableAll(ctx)
}

// Disable disables torque on both servos.
func (l *Legs) Disable(ctx context.Context) error {
	return l.group.DisableAll(ctx)
}

// SetAngle writes angle to the leg's servo. Errors are logged; the control
// loop has no way to act on them.
func (l *Legs) SetAngle(leg locomotion.Leg, angle locomotion.Angle) {
	name := NameOf(leg)
	cal, ok := l.calibration[name]
	if !ok {
		log.Errorf("no calibration for %s", name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	raw := cal.Raw(float64(angle))
	if err := l.group.SetPositions(ctx, feetech.PositionMap{cal.ID: raw}); err != nil {
		log.WithError(err).Warnf("write %s=%d° (raw %d)", name, angle, raw)
	}
}

// ReadAngles reads the current servo positions, in degrees.
func (l *Legs) ReadAngles(ctx context.Context) (map[LegName]float64, error) {
	rawPositions, err := l.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	angles := make(map[LegName]float64, len(rawPositions))
	for id, raw := range rawPositions {
		name, cal, ok := l.calibration.ByID(id)
		if !ok {
			continue
		}
		angles[name] = cal.Degrees(raw)
	}

	return angles, nil
}
