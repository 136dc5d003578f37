package fault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackworks/wayside/internal/testutil"
	"github.com/trackworks/wayside/internal/track"
)

// fakeEcho serves canned actuator readbacks.
type fakeEcho struct {
	signals  map[track.BlockID]track.Aspect
	switches map[track.SwitchID]track.SwitchPosition
}

func newFakeEcho() *fakeEcho {
	return &fakeEcho{
		signals:  make(map[track.BlockID]track.Aspect),
		switches: make(map[track.SwitchID]track.SwitchPosition),
	}
}

func (e *fakeEcho) SignalEcho(id track.BlockID) (track.Aspect, bool) {
	a, ok := e.signals[id]
	return a, ok
}

func (e *fakeEcho) SwitchEcho(id track.SwitchID) (track.SwitchPosition, bool) {
	p, ok := e.switches[id]
	return p, ok
}

func newDetector(t *testing.T) (*Detector, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock()
	return New(track.GreenLine(), clock, Config{}, nil), clock
}

func TestBrokenRail_RaisedWhenNeighborsQuiet(t *testing.T) {
	d, _ := newDetector(t)

	// Block 70 becomes occupied with zero prior activity anywhere.
	d.ObserveOccupancy(70, true)

	assert.True(t, d.Open(KindBrokenRail, 70))
}

func TestBrokenRail_NotRaisedAfterNeighborActivity(t *testing.T) {
	d, clock := newDetector(t)

	// A train vacates 69 and rolls onto 70 five seconds later.
	d.ObserveOccupancy(69, true)
	clock.Advance(5 * time.Second)
	d.ObserveOccupancy(69, false)
	d.ObserveOccupancy(70, true)

	assert.False(t, d.Open(KindBrokenRail, 70))
}

func TestBrokenRail_NeighborActivityOutsideWindow(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(69, true)
	clock.Advance(13 * time.Second) // past the 12 s window
	d.ObserveOccupancy(70, true)

	assert.True(t, d.Open(KindBrokenRail, 70))
}

func TestBrokenRail_GuardBlockCountsAsNeighbor(t *testing.T) {
	clock := testutil.NewFakeClock()
	d := New(track.RedLine(), clock, Config{}, nil)

	// A train approaches through guard block 34 and enters at 35.
	d.ObserveOccupancy(34, true)
	clock.Advance(3 * time.Second)
	d.ObserveOccupancy(35, true)

	assert.False(t, d.Open(KindBrokenRail, 35))
}

func TestBrokenRail_Idempotent(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(70, true)
	clock.Advance(30 * time.Second)
	d.ObserveOccupancy(70, false)
	clock.Advance(30 * time.Second)
	d.ObserveOccupancy(70, true)

	rep := d.Report()
	require.Len(t, rep.Active, 1, "second occurrence suppressed while open")
	assert.Equal(t, 1, rep.TotalFailures)
}

func TestTrackCircuit_RaisedOnImplausibleVacate(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(70, true)
	d.NoteStopOrder(70)
	clock.Advance(4 * time.Second) // under the 10 s window

	directives := d.ObserveOccupancy(70, false)

	assert.True(t, d.Open(KindTrackCircuit, 70))

	// Protective bubble: RED and zero commands on 68..72.
	require.Len(t, directives, 5)
	for i, dir := range directives {
		assert.Equal(t, track.BlockID(68+i), dir.Block)
		assert.True(t, dir.ForceRed)
		assert.True(t, dir.ZeroSpeed)
		assert.True(t, dir.ZeroAuthority)
	}
}

func TestTrackCircuit_BubbleClampedToTerritory(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(1, true)
	d.NoteStopOrder(1)
	clock.Advance(time.Second)
	directives := d.ObserveOccupancy(1, false)

	// Only blocks 1..3 exist below the window's upper half.
	require.Len(t, directives, 3)
	assert.Equal(t, track.BlockID(1), directives[0].Block)
	assert.Equal(t, track.BlockID(3), directives[2].Block)
}

func TestTrackCircuit_RepeatedStopOrderKeepsOriginalTime(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(70, true)
	d.NoteStopOrder(70)
	clock.Advance(8 * time.Second)
	d.NoteStopOrder(70) // re-issued; window still runs from the first
	clock.Advance(4 * time.Second)

	directives := d.ObserveOccupancy(70, false)

	assert.False(t, d.Open(KindTrackCircuit, 70),
		"12 s since the first stop order is a plausible stop")
	assert.Empty(t, directives)
}

func TestTrackCircuit_PlausibleVacateIsClean(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(70, true)
	d.NoteStopOrder(70)
	clock.Advance(11 * time.Second)

	directives := d.ObserveOccupancy(70, false)

	assert.False(t, d.Open(KindTrackCircuit, 70))
	assert.Empty(t, directives)
}

func TestTrackCircuit_NoStopOrderNoFailure(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(70, true)
	clock.Advance(time.Second)
	directives := d.ObserveOccupancy(70, false)

	assert.False(t, d.Open(KindTrackCircuit, 70))
	assert.Empty(t, directives)
}

func TestPowerFailure_AfterExactlyThreeTimeouts(t *testing.T) {
	d, clock := newDetector(t)
	echo := newFakeEcho() // never echoes GREEN

	d.ExpectSignal(70, track.AspectGreen)

	for cycle := 1; cycle <= 2; cycle++ {
		clock.Advance(5 * time.Second)
		d.Review(echo)
		assert.False(t, d.Open(KindPowerFailure, 70), "cycle %d must not raise yet", cycle)
	}

	clock.Advance(5 * time.Second)
	d.Review(echo)
	assert.True(t, d.Open(KindPowerFailure, 70), "third timeout raises the failure")
	assert.Zero(t, d.Report().PendingVerifications)
}

func TestPowerFailure_EchoClearsVerification(t *testing.T) {
	d, clock := newDetector(t)
	echo := newFakeEcho()

	d.ExpectSignal(70, track.AspectGreen)
	clock.Advance(5 * time.Second)
	d.Review(echo) // first timeout

	echo.signals[70] = track.AspectGreen
	clock.Advance(5 * time.Second)
	d.Review(echo)

	assert.False(t, d.Open(KindPowerFailure, 70))
	assert.Zero(t, d.Report().PendingVerifications)
}

func TestPowerFailure_WrongEchoStillCounts(t *testing.T) {
	d, clock := newDetector(t)
	echo := newFakeEcho()
	echo.signals[70] = track.AspectRed // echoing, but not the commanded value

	d.ExpectSignal(70, track.AspectGreen)
	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Second)
		d.Review(echo)
	}
	assert.True(t, d.Open(KindPowerFailure, 70))
}

func TestPowerFailure_SwitchDirectiveZeroesSpeed(t *testing.T) {
	d, clock := newDetector(t)
	echo := newFakeEcho()
	echo.switches[77] = track.PositionStraight // stuck

	d.ExpectSwitch(77, track.PositionDiverging)

	var directives []Directive
	for i := 0; i < 3; i++ {
		clock.Advance(5 * time.Second)
		directives = d.Review(echo)
	}

	assert.True(t, d.Open(KindPowerFailure, 77))
	require.Len(t, directives, 1)
	assert.Equal(t, track.BlockID(77), directives[0].Block)
	assert.True(t, directives[0].ZeroSpeed)
	assert.False(t, directives[0].ForceRed)
}

func TestPowerFailure_RecommandRestartsVerification(t *testing.T) {
	d, clock := newDetector(t)
	echo := newFakeEcho()

	d.ExpectSignal(70, track.AspectGreen)
	clock.Advance(5 * time.Second)
	d.Review(echo) // one timeout recorded

	// Operator re-commands: the verification starts over.
	d.ExpectSignal(70, track.AspectYellow)
	for i := 0; i < 2; i++ {
		clock.Advance(5 * time.Second)
		d.Review(echo)
	}
	assert.False(t, d.Open(KindPowerFailure, 70), "only two timeouts since re-command")
}

func TestHistory_Bounded(t *testing.T) {
	clock := testutil.NewFakeClock()
	d := New(track.GreenLine(), clock, Config{HistoryLimit: 3}, nil)

	for b := track.BlockID(10); b < 20; b += 2 {
		d.ObserveOccupancy(b, true)
	}

	rep := d.Report()
	assert.Len(t, rep.History, 3, "history keeps the most recent entries")
	assert.Equal(t, 5, rep.TotalFailures)
	assert.Equal(t, track.BlockID(18), rep.History[2].Block)
}

func TestClear_DropsEverythingAndIsIdempotent(t *testing.T) {
	d, _ := newDetector(t)

	d.ObserveOccupancy(70, true)
	d.ExpectSignal(70, track.AspectGreen)
	d.NoteStopOrder(70)
	require.NotEmpty(t, d.Report().Active)

	d.Clear()
	rep := d.Report()
	assert.Empty(t, rep.Active)
	assert.Zero(t, rep.PendingVerifications)

	// Stop orders were dropped too: vacating now cannot raise track circuit.
	assert.Empty(t, d.ObserveOccupancy(70, false))

	d.Clear() // second call is a no-op
	assert.Empty(t, d.Report().Active)

	// History survives clearing; only open records are resolved.
	assert.Equal(t, 1, d.Report().TotalFailures)
}

func TestReport_ActiveSorted(t *testing.T) {
	d, clock := newDetector(t)

	d.ObserveOccupancy(90, true)
	clock.Advance(20 * time.Second)
	d.ObserveOccupancy(50, true)

	rep := d.Report()
	require.Len(t, rep.Active, 2)
	assert.Equal(t, track.BlockID(50), rep.Active[0].Block)
	assert.Equal(t, track.BlockID(90), rep.Active[1].Block)
}
