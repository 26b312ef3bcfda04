package pilot

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmedElnaggar-275/Robot/pkg/fake"
	"github.com/AhmedElnaggar-275/Robot/pkg/link"
	"github.com/AhmedElnaggar-275/Robot/pkg/locomotion"
)

var _ Link = (*link.Link)(nil)

// brokenLink is a command source whose stream can be cut.
type brokenLink struct {
	*fake.Source
	err     error
	dropped int
}

func (b *brokenLink) Err() error   { return b.err }
func (b *brokenLink) Dropped() int { return b.dropped }

func newTestPilot() (*Pilot, *fake.Legs, *fake.Ranger, *fake.Source, *fake.Clock) {
	legs := fake.NewLegs()
	ranger := fake.NewRanger(locomotion.NoEcho)
	source := fake.NewSource()
	clock := fake.NewClock()
	p := New(legs, ranger, source, Config{Hz: 200, Clock: clock.Now})
	return p, legs, ranger, source, clock
}

func drainLogs(p *Pilot) []string {
	var out []string
	for {
		select {
		case msg := <-p.Logs():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPilot_StepPublishes(t *testing.T) {
	p, _, _, source, clock := newTestPilot()

	var got []State
	p.Subscribe(func(s State) { got = append(got, s) })

	source.Push('F')
	p.Step()
	for i := 0; i < 30; i++ {
		clock.Advance(10 * time.Millisecond)
		p.Step()
	}

	require.Len(t, got, 31)
	assert.Equal(t, locomotion.Forward, got[0].Command)
	assert.Equal(t, locomotion.RightStroking, p.Last().WalkPhase)

	// The state channel keeps only the latest value.
	select {
	case s := <-p.States():
		assert.Equal(t, p.Last(), s)
	default:
		t.Fatal("no state published")
	}
}

func TestPilot_LogsObstacleEdges(t *testing.T) {
	p, _, ranger, source, clock := newTestPilot()

	source.Push('F')
	p.Step()
	ranger.Set(8)
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		source.Push('F')
		p.Step()
	}
	ranger.Set(100)
	clock.Advance(10 * time.Millisecond)
	p.Step()

	logs := strings.Join(drainLogs(p), "\n")
	assert.Equal(t, 1, strings.Count(logs, "Command: forward"))
	assert.Equal(t, 1, strings.Count(logs, "Obstacle at 8.0 cm"))
	assert.Equal(t, 1, strings.Count(logs, "Path clear"))
}

func TestPilot_StartStop(t *testing.T) {
	legs := fake.NewLegs()
	source := fake.NewSource('F')
	p := New(legs, fake.NewRanger(locomotion.NoEcho), source, Config{Hz: 500})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	require.Eventually(t, func() bool {
		return p.Last().Command == locomotion.Forward
	}, time.Second, time.Millisecond)
	assert.True(t, p.Running())
	assert.Error(t, p.Start(ctx), "second Start should fail")

	// Let the first stroke begin so shutdown has something to undo.
	require.Eventually(t, func() bool {
		return legs.Angle(locomotion.RightLeg) == 0
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}

	assert.False(t, p.Running())
	assert.True(t, legs.Neutral())
	assert.False(t, p.Last().Moving)

	// Halt at start plus halt at stop, with strokes in between.
	writes := legs.Writes()
	require.GreaterOrEqual(t, len(writes), 5)
	assert.Equal(t, fake.Write{Leg: locomotion.RightLeg, Angle: locomotion.Neutral}, writes[0])
	assert.Equal(t, fake.Write{Leg: locomotion.RightLeg, Angle: 0}, writes[2])
}

func TestPilot_LinkLossStops(t *testing.T) {
	src := &brokenLink{Source: fake.NewSource('F', 'L')}
	clock := fake.NewClock()
	p := New(fake.NewLegs(), fake.NewRanger(locomotion.NoEcho), src, Config{Clock: clock.Now})

	src.err = io.EOF

	// Bytes that arrived before the loss are still obeyed.
	p.Step()
	assert.Equal(t, locomotion.Forward, p.Last().Command)
	p.Step()
	assert.Equal(t, locomotion.RotateLeft, p.Last().Command)

	p.Step()
	assert.Equal(t, locomotion.Stop, p.Last().Command)

	for i := 0; i < 10; i++ {
		clock.Advance(10 * time.Millisecond)
		p.Step()
	}
	assert.Equal(t, locomotion.Stop, p.Last().Command)

	logs := strings.Join(drainLogs(p), "\n")
	assert.Equal(t, 1, strings.Count(logs, "Command link lost (EOF)"))
}

func TestPilot_LogsDroppedBytes(t *testing.T) {
	src := &brokenLink{Source: fake.NewSource()}
	p := New(fake.NewLegs(), fake.NewRanger(locomotion.NoEcho), src, Config{})

	p.Step()
	src.dropped = 3
	p.Step()
	p.Step()
	src.dropped = 4
	p.Step()

	logs := strings.Join(drainLogs(p), "\n")
	assert.Contains(t, logs, "Dropped 3 command byte(s)")
	assert.Contains(t, logs, "Dropped 1 command byte(s)")
	assert.Equal(t, 2, strings.Count(logs, "Dropped"))
}

func TestPilot_SerialLinkEOF(t *testing.T) {
	l := link.New(strings.NewReader("F"))
	defer l.Close()
	require.Eventually(t, func() bool { return l.Err() != nil }, time.Second, time.Millisecond)

	clock := fake.NewClock()
	p := New(fake.NewLegs(), fake.NewRanger(locomotion.NoEcho), l, Config{Clock: clock.Now})

	p.Step()
	assert.Equal(t, locomotion.Forward, p.Last().Command)
	p.Step()
	assert.Equal(t, locomotion.Stop, p.Last().Command)
}
