package plc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackworks/wayside/internal/track"
)

func greenSnapshot(occupied ...track.BlockID) Snapshot {
	occ := make(map[track.BlockID]bool, len(occupied))
	for _, b := range occupied {
		occ[b] = true
	}
	return Snapshot{Topology: track.GreenLine(), Occupancy: occ}
}

func TestBuiltin_Lookup(t *testing.T) {
	p, ok := Builtin("block-ahead", track.GreenLine())
	require.True(t, ok)
	assert.Equal(t, "block-ahead", p.Name())

	_, ok = Builtin("no-such-program", track.GreenLine())
	assert.False(t, ok)

	assert.Contains(t, BuiltinNames(), "block-ahead")
}

func TestBlockAhead_SignalLadder(t *testing.T) {
	p, _ := Builtin("block-ahead", track.GreenLine())
	a := p.Evaluate(greenSnapshot(70))

	assert.Equal(t, track.AspectRed, a.Signals[70], "occupied block")
	assert.Equal(t, track.AspectRed, a.Signals[69], "block directly behind")
	assert.Equal(t, track.AspectYellow, a.Signals[68], "two blocks behind")
	assert.Equal(t, track.AspectGreen, a.Signals[67], "clear approach")
}

func TestBlockAhead_StopWhenTwoAheadOccupied(t *testing.T) {
	p, _ := Builtin("block-ahead", track.GreenLine())

	a := p.Evaluate(greenSnapshot(70, 72))
	assert.True(t, a.Stop[70], "train two blocks ahead")

	a = p.Evaluate(greenSnapshot(70))
	require.Contains(t, a.Stop, track.BlockID(70))
	assert.False(t, a.Stop[70], "path ahead clear releases the stop")

	assert.NotContains(t, a.Stop, track.BlockID(40), "vacant blocks get no stop flag")
}

func TestBlockAhead_CrossingFollowsGuardBlocks(t *testing.T) {
	p, _ := Builtin("block-ahead", track.GreenLine())

	a := p.Evaluate(greenSnapshot(19))
	assert.Equal(t, track.GateActive, a.Crossings[1])

	a = p.Evaluate(greenSnapshot(40))
	assert.Equal(t, track.GateInactive, a.Crossings[1])
}
