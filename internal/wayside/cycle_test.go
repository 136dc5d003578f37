package wayside

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackworks/wayside/internal/fault"
	"github.com/trackworks/wayside/internal/plc"
	"github.com/trackworks/wayside/internal/track"
)

func TestPollOnce_AppliesOccupancyAndSignalDeltas(t *testing.T) {
	f := newFixture(t)

	f.sim.SetOccupied(greenLine, 40, true)
	require.NoError(t, f.sim.SetSignalState(greenLine, 41, track.AspectYellow))

	require.NoError(t, f.c.PollOnce())

	v, _ := f.c.BlockView(40)
	assert.True(t, v.Occupied)
	v, _ = f.c.BlockView(41)
	assert.Equal(t, track.AspectYellow, v.Aspect)

	u, ok := f.ctc.lastFor(40)
	require.True(t, ok, "delta relayed to CTC")
	assert.True(t, u.Occupied)
}

func TestPollOnce_QuietCycleRelaysNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.PollOnce())
	assert.Empty(t, f.ctc.batches)
}

func TestPollOnce_BrokenRailFromFieldReading(t *testing.T) {
	f := newFixture(t)

	// Occupancy appears mid-territory with both neighbors quiet.
	f.sim.SetOccupied(greenLine, 70, true)
	require.NoError(t, f.c.PollOnce())

	rep := f.c.FailureReport()
	require.Len(t, rep.Active, 1)
	assert.Equal(t, fault.KindBrokenRail, rep.Active[0].Kind)
	assert.Equal(t, track.BlockID(70), rep.Active[0].Block)
}

func TestPollOnce_PowerFailureAfterThreeTimeouts(t *testing.T) {
	f := newFixture(t)
	f.sim.KillSignal(greenLine, 70)

	require.NoError(t, f.c.SetSignal(70, track.AspectGreen))

	for cycle := 1; cycle <= 2; cycle++ {
		f.clock.Advance(5 * time.Second)
		require.NoError(t, f.c.PollOnce())
		assert.Empty(t, f.c.FailureReport().Active, "cycle %d must not raise yet", cycle)
	}

	f.clock.Advance(5 * time.Second)
	require.NoError(t, f.c.PollOnce())

	rep := f.c.FailureReport()
	require.Len(t, rep.Active, 1)
	assert.Equal(t, fault.KindPowerFailure, rep.Active[0].Kind)
	assert.Equal(t, track.BlockID(70), rep.Active[0].Block)
}

func TestPollOnce_SelfHealsAfterModelError(t *testing.T) {
	f := newFixture(t)

	f.sim.FailNext()
	require.Error(t, f.c.PollOnce())

	f.sim.SetOccupied(greenLine, 40, true)
	require.NoError(t, f.c.PollOnce(), "next cycle recovers")
	v, _ := f.c.BlockView(40)
	assert.True(t, v.Occupied)
}

func TestGuardPollOnce_SeesApproachingTrain(t *testing.T) {
	f := newFixture(t)

	// Green territory is 1..121; block 122 is the upper guard block.
	f.sim.SetOccupied(greenLine, 122, true)
	require.NoError(t, f.c.GuardPollOnce())

	v, ok := f.c.BlockView(122)
	require.True(t, ok)
	assert.True(t, v.Occupied)

	// A train rolling from the guard block into the territory is a normal
	// entry, not a broken rail.
	f.clock.Advance(3 * time.Second)
	f.sim.SetOccupied(greenLine, 121, true)
	require.NoError(t, f.c.PollOnce())
	assert.Empty(t, f.c.FailureReport().Active)
}

func TestPollOnce_RunsLoadedProgram(t *testing.T) {
	f := newFixture(t)
	f.c.SetMaintenanceMode(true)
	p, _ := plc.Builtin("block-ahead", f.c.Topology())
	require.NoError(t, f.c.UploadProgram(p))
	f.c.SetMaintenanceMode(false)

	f.sim.SetOccupied(greenLine, 70, true)
	require.NoError(t, f.c.PollOnce())

	v, _ := f.c.BlockView(69)
	assert.Equal(t, track.AspectRed, v.Aspect)

	st, err := f.sim.GetBlock(greenLine, 69)
	require.NoError(t, err)
	assert.Equal(t, track.AspectRed, st.Aspect, "program output pushed to the field")
}

func TestStartStop_Lifecycle(t *testing.T) {
	f := newFixture(t)
	c := New(track.GreenLine(), f.sim, f.ctc, Options{
		Clock:        f.clock,
		PollInterval: time.Millisecond,
	})

	require.NoError(t, c.Start(context.Background()))
	assert.Error(t, c.Start(context.Background()), "double start rejected")

	f.sim.SetOccupied(greenLine, 40, true)
	require.Eventually(t, func() bool {
		v, _ := c.BlockView(40)
		return v.Occupied
	}, time.Second, time.Millisecond)

	c.Stop()
	c.Stop() // idempotent
}
