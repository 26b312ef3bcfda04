package locomotion_test

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedElnaggar-275/Robot/pkg/fake"
	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

type rig struct {
	legs   *fake.Legs
	ranger *fake.Ranger
	source *fake.Source
	clock  *fake.Clock
	ctrl   *locomotion.Controller
}

func newRig() *rig {
	r := &rig{
		legs:   fake.NewLegs(),
		ranger: fake.NewRanger(locomotion.NoEcho),
		source: fake.NewSource(),
		clock:  fake.NewClock(),
	}
	r.ctrl = locomotion.New(r.legs, r.ranger, r.source, locomotion.Config{
		Clock: r.clock.Now,
	})
	return r
}

// run ticks every step until d has elapsed, calling check after each tick.
func (r *rig) run(d, step time.Duration, check func()) {
	for elapsed := step; elapsed <= d; elapsed += step {
		r.clock.Advance(step)
		r.ctrl.Tick()
		if check != nil {
			check()
		}
	}
}

func TestController_WalkCycle(t *testing.T) {
	r := newRig()
	r.source.Push('F')
	r.ctrl.Tick()
	require.Equal(t, locomotion.Forward, r.ctrl.Command())

	r.run(1500*time.Millisecond, 10*time.Millisecond, func() {
		phase := r.ctrl.Arbiter().Walk().Phase()
		switch phase {
		case locomotion.LeftPaused, locomotion.RightPaused:
			assert.True(t, r.legs.Neutral(), "legs extended during %v", phase)
			assert.False(t, r.ctrl.Moving(), "moving during %v", phase)
		default:
			assert.False(t, r.legs.Neutral(), "legs neutral during %v", phase)
			assert.True(t, r.ctrl.Moving(), "not moving during %v", phase)
		}
	})

	want := []fake.Write{
		{Leg: locomotion.RightLeg, Angle: 0},
		{Leg: locomotion.RightLeg, Angle: locomotion.Neutral},
		{Leg: locomotion.LeftLeg, Angle: 180},
		{Leg: locomotion.LeftLeg, Angle: locomotion.Neutral},
	}
	assert.Equal(t, want, r.legs.Writes())
	assert.Equal(t, locomotion.LeftPaused, r.ctrl.Arbiter().Walk().Phase())
	assert.False(t, r.ctrl.Moving())
}

func TestController_ObstacleDuringStroke(t *testing.T) {
	r := newRig()
	r.source.Push('F')
	r.ctrl.Tick()
	r.run(300*time.Millisecond, 10*time.Millisecond, nil)

	require.Equal(t, locomotion.RightStroking, r.ctrl.Arbiter().Walk().Phase())
	require.True(t, r.ctrl.Moving())
	require.Equal(t, locomotion.Angle(0), r.legs.Angle(locomotion.RightLeg))

	r.legs.Clear()
	r.ranger.Set(10)
	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Tick()

	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.False(t, r.ctrl.Moving())
	assert.True(t, r.legs.Neutral())
	assert.Equal(t, []fake.Write{
		{Leg: locomotion.RightLeg, Angle: locomotion.Neutral},
		{Leg: locomotion.LeftLeg, Angle: locomotion.Neutral},
	}, r.legs.Writes())

	// Stays stopped without re-issuing writes while the obstacle remains.
	r.legs.Clear()
	r.run(500*time.Millisecond, 10*time.Millisecond, nil)
	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.Empty(t, r.legs.Writes())
}

func TestController_ObstacleOverridesInputEveryTick(t *testing.T) {
	r := newRig()
	r.ranger.Set(12)

	r.run(1500*time.Millisecond, 10*time.Millisecond, func() {
		assert.Equal(t, locomotion.Stop, r.ctrl.Command())
		r.source.Push('F')
	})
	assert.Empty(t, r.legs.Writes())

	// Once clear, the next forward command walks again from the start.
	r.ranger.Set(locomotion.NoEcho)
	r.source.Push('F')
	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Tick()
	require.Equal(t, locomotion.Forward, r.ctrl.Command())

	r.run(250*time.Millisecond, 10*time.Millisecond, nil)
	assert.Equal(t, []fake.Write{{Leg: locomotion.RightLeg, Angle: 0}}, r.legs.Writes())
}

func TestController_GaitSwitchPassesThroughNeutral(t *testing.T) {
	r := newRig()
	r.source.Push('F')
	r.ctrl.Tick()
	r.run(300*time.Millisecond, 10*time.Millisecond, nil)
	require.Equal(t, locomotion.RightStroking, r.ctrl.Arbiter().Walk().Phase())

	r.legs.Clear()
	r.source.Push('L')
	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Tick()

	assert.Equal(t, locomotion.RotateLeft, r.ctrl.Command())
	assert.True(t, r.legs.Neutral())
	assert.False(t, r.ctrl.Moving())

	r.run(300*time.Millisecond, 10*time.Millisecond, nil)
	assert.Equal(t, []fake.Write{
		{Leg: locomotion.RightLeg, Angle: locomotion.Neutral},
		{Leg: locomotion.LeftLeg, Angle: locomotion.Neutral},
		{Leg: locomotion.RightLeg, Angle: 0},
	}, r.legs.Writes())
	assert.Equal(t, locomotion.Stroking, r.ctrl.Arbiter().Rotation(locomotion.RotateLeft).Phase())
}

func TestController_SwitchWhileNeutralSkipsStop(t *testing.T) {
	r := newRig()
	r.source.Push('F')
	r.ctrl.Tick()
	r.run(800*time.Millisecond, 10*time.Millisecond, nil)
	require.Equal(t, locomotion.RightPaused, r.ctrl.Arbiter().Walk().Phase())

	r.legs.Clear()
	r.source.Push('R')
	r.run(260*time.Millisecond, 10*time.Millisecond, nil)

	// Left leg pivots; nothing needed stopping first.
	assert.Equal(t, []fake.Write{{Leg: locomotion.LeftLeg, Angle: 180}}, r.legs.Writes())
}

func TestController_StopIsIdempotent(t *testing.T) {
	r := newRig()
	r.source.Push('S')
	r.run(time.Second, 10*time.Millisecond, nil)
	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.Empty(t, r.legs.Writes())

	r.source.Push('F')
	r.run(300*time.Millisecond, 10*time.Millisecond, nil)
	r.legs.Clear()

	r.source.Push('S')
	r.run(time.Second, 10*time.Millisecond, func() {
		r.source.Push('S')
	})
	assert.Equal(t, []fake.Write{
		{Leg: locomotion.RightLeg, Angle: locomotion.Neutral},
		{Leg: locomotion.LeftLeg, Angle: locomotion.Neutral},
	}, r.legs.Writes())
}

func TestController_UnsetDoesNothing(t *testing.T) {
	r := newRig()
	r.run(time.Second, 10*time.Millisecond, nil)
	assert.Equal(t, locomotion.Unset, r.ctrl.Command())
	assert.Empty(t, r.legs.Writes())
}

func TestController_DuplicateForwardIgnored(t *testing.T) {
	phases := func(resend bool) []locomotion.WalkPhase {
		r := newRig()
		r.source.Push('F')
		r.ctrl.Tick()

		var got []locomotion.WalkPhase
		r.run(3*time.Second, 10*time.Millisecond, func() {
			got = append(got, r.ctrl.Arbiter().Walk().Phase())
			if resend {
				r.source.Push('F')
			}
		})
		assert.Len(t, r.legs.Writes(), 8)
		return got
	}

	assert.Equal(t, phases(false), phases(true))
}

func TestController_IgnoresNoise(t *testing.T) {
	r := newRig()
	r.source.Push('F', '\r', '\n', 'x', 'f', 0)
	r.run(1500*time.Millisecond, 10*time.Millisecond, nil)

	assert.Equal(t, locomotion.Forward, r.ctrl.Command())
	assert.Len(t, r.legs.Writes(), 3)
}

func TestController_OneBytePerTick(t *testing.T) {
	r := newRig()
	r.source.Push('F', 'S')

	r.ctrl.Tick()
	assert.Equal(t, locomotion.Forward, r.ctrl.Command())
	assert.Equal(t, 1, r.source.Pending())

	r.ctrl.Tick()
	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.Equal(t, 0, r.source.Pending())
}

func TestController_SampleSequence(t *testing.T) {
	r := newRig()
	r.ranger.Script(locomotion.NoEcho, 0, 14.9, 15.1)
	r.source.Push('F')

	tick := func() {
		r.clock.Advance(10 * time.Millisecond)
		r.ctrl.Tick()
	}

	tick()
	assert.Equal(t, locomotion.Forward, r.ctrl.Command())

	// A zero reading is a failed measurement, not a contact.
	tick()
	assert.Equal(t, locomotion.Forward, r.ctrl.Command())

	tick()
	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.True(t, r.ctrl.Status().ObstacleNear)

	// Clearing the obstacle does not resume walking on its own.
	tick()
	assert.Equal(t, locomotion.Stop, r.ctrl.Command())
	assert.False(t, r.ctrl.Status().ObstacleNear)
	assert.Empty(t, r.legs.Writes())
}

func TestController_RotateRightUsesLeftLeg(t *testing.T) {
	r := newRig()
	r.source.Push('R')
	r.ctrl.Tick()
	r.run(750*time.Millisecond, 10*time.Millisecond, nil)

	assert.Equal(t, []fake.Write{
		{Leg: locomotion.LeftLeg, Angle: 180},
		{Leg: locomotion.LeftLeg, Angle: locomotion.Neutral},
	}, r.legs.Writes())
	assert.Equal(t, locomotion.Angle(90), r.legs.Angle(locomotion.RightLeg))
}

func TestController_Halt(t *testing.T) {
	r := newRig()
	r.ctrl.Halt()
	assert.Len(t, r.legs.Writes(), 2)
	assert.True(t, r.legs.Neutral())
	assert.Equal(t, locomotion.Unset, r.ctrl.Command())
}

func TestController_Status(t *testing.T) {
	r := newRig()
	r.ranger.Set(42.5)
	r.source.Push('L')
	r.ctrl.Tick()
	r.run(250*time.Millisecond, 10*time.Millisecond, nil)

	s := r.ctrl.Status()
	assert.Equal(t, locomotion.RotateLeft, s.Command)
	require.NotNil(t, s.RotatePhase)
	assert.Equal(t, locomotion.Stroking, *s.RotatePhase)
	assert.True(t, s.Moving)
	assert.Equal(t, 42.5, s.Distance)
	assert.False(t, s.ObstacleNear)
	assert.Equal(t, locomotion.Angle(0), s.Right)
	assert.Equal(t, locomotion.Neutral, s.Left)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"command":"rotate_left"`)
	assert.Contains(t, string(data), `"rotate_phase":"stroking"`)
}

func TestController_StatusOmitsRotatePhaseUnlessRotating(t *testing.T) {
	r := newRig()
	assert.Nil(t, r.ctrl.Status().RotatePhase)

	r.source.Push('F')
	r.ctrl.Tick()
	r.run(300*time.Millisecond, 10*time.Millisecond, nil)

	s := r.ctrl.Status()
	require.Equal(t, locomotion.Forward, s.Command)
	assert.Nil(t, s.RotatePhase)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rotate_phase")
	assert.Contains(t, string(data), `"walk_phase":"right_stroking"`)
}

// Random input and obstacles must never break the safety invariants.
func TestController_Invariants(t *testing.T) {
	r := newRig()
	rng := rand.New(rand.NewSource(1))
	inputs := []byte{'F', 'L', 'R', 'S', '\n', 'q'}
	samples := []float64{locomotion.NoEcho, 0, 5, 15, 16, 40, 200}

	last := locomotion.Unset
	for i := 0; i < 20000; i++ {
		if rng.Intn(20) == 0 {
			r.source.Push(inputs[rng.Intn(len(inputs))])
		}
		sample := samples[rng.Intn(len(samples))]
		if rng.Intn(4) != 0 {
			sample = locomotion.NoEcho
		}
		r.ranger.Set(sample)

		r.legs.Clear()
		r.clock.Advance(time.Duration(1+rng.Intn(30)) * time.Millisecond)
		r.ctrl.Tick()

		near := sample > 0 && sample <= locomotion.DefaultThreshold
		if near {
			require.Equal(t, locomotion.Stop, r.ctrl.Command(), "tick %d", i)
		}
		require.Equal(t, !r.legs.Neutral(), r.ctrl.Moving(), "tick %d", i)

		// Never both legs extended at once.
		extended := 0
		for _, leg := range locomotion.Legs() {
			if r.legs.Angle(leg) != locomotion.Neutral {
				extended++
			}
		}
		require.LessOrEqual(t, extended, 1, "tick %d", i)

		// The tick that changes the command only ever stops legs.
		if cmd := r.ctrl.Command(); cmd != last {
			for _, w := range r.legs.Writes() {
				require.Equal(t, locomotion.Neutral, w.Angle, "tick %d", i)
			}
			last = cmd
		}
	}
}
