package trackmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackworks/wayside/internal/track"
)

func TestSim_ReadsBackWrites(t *testing.T) {
	sim := NewSim()

	require.NoError(t, sim.SetSignalState("green", 70, track.AspectYellow))
	require.NoError(t, sim.SetSwitchPosition("green", 77, track.PositionDiverging))
	require.NoError(t, sim.SetGateStatus("green", 19, true))
	require.NoError(t, sim.BroadcastTrainCommand("green", 70, 25, 300))
	sim.SetOccupied("green", 70, true)

	st, err := sim.GetBlock("green", 70)
	require.NoError(t, err)
	assert.True(t, st.Occupied)
	assert.Equal(t, track.AspectYellow, st.Aspect)

	pos, err := sim.GetSwitch("green", 77)
	require.NoError(t, err)
	assert.Equal(t, track.PositionDiverging, pos)

	assert.True(t, sim.GateStatus("green", 19))

	cmd, ok := sim.LastCommand("green", 70)
	require.True(t, ok)
	assert.Equal(t, TrainCommand{SpeedMPH: 25, AuthorityYd: 300}, cmd)
}

func TestSim_LinesAreIndependent(t *testing.T) {
	sim := NewSim()
	sim.SetOccupied("green", 70, true)

	st, err := sim.GetBlock("red", 70)
	require.NoError(t, err)
	assert.False(t, st.Occupied)
}

func TestSim_DeadSignalSwallowsCommands(t *testing.T) {
	sim := NewSim()
	sim.KillSignal("green", 70)

	require.NoError(t, sim.SetSignalState("green", 70, track.AspectGreen))

	st, err := sim.GetBlock("green", 70)
	require.NoError(t, err)
	assert.Equal(t, track.AspectRed, st.Aspect, "lamp stays at its zero value")
}

func TestSim_DeadSwitchSwallowsCommands(t *testing.T) {
	sim := NewSim()
	sim.KillSwitch("green", 77)

	require.NoError(t, sim.SetSwitchPosition("green", 77, track.PositionDiverging))

	pos, err := sim.GetSwitch("green", 77)
	require.NoError(t, err)
	assert.Equal(t, track.PositionStraight, pos)
}

func TestSim_FailNextFailsExactlyOnce(t *testing.T) {
	sim := NewSim()
	sim.FailNext()

	_, err := sim.GetBlock("green", 70)
	require.Error(t, err)

	_, err = sim.GetBlock("green", 70)
	assert.NoError(t, err, "error is transient")
}
