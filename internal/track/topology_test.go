package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopology_RejectsSwitchOutsideTerritory(t *testing.T) {
	_, err := NewTopology("Test", 1, 50, 100, map[SwitchID]SwitchTopology{
		40: {Entry: 40, Straight: 41, Diverging: 60},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside territory")
}

func TestNewTopology_RejectsCrossingWithoutGuardBlocks(t *testing.T) {
	_, err := NewTopology("Test", 1, 50, 100, nil, []Crossing{{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no guard blocks")
}

func TestTopology_GuardBlocks_BothEdges(t *testing.T) {
	top := RedLine()
	assert.Equal(t, []BlockID{34, 72}, top.GuardBlocks())
}

func TestTopology_GuardBlocks_LineStart(t *testing.T) {
	// Green territory starts at block 1; only the upper guard block exists.
	top := GreenLine()
	assert.Equal(t, []BlockID{122}, top.GuardBlocks())
}

func TestTopology_GuardBlocks_LineEnd(t *testing.T) {
	// Blue owns the whole line; no guard blocks at all.
	top := BlueLine()
	assert.Empty(t, top.GuardBlocks())
}

func TestTopology_Adjacent_ClampsToTerritory(t *testing.T) {
	top := RedLine()
	assert.Equal(t, []BlockID{36}, top.Adjacent(35))
	assert.Equal(t, []BlockID{69, 71}, top.Adjacent(70))
	assert.Equal(t, []BlockID{70}, top.Adjacent(71))
}

func TestTopology_SwitchIDs_Sorted(t *testing.T) {
	top := RedLine()
	assert.Equal(t, []SwitchID{38, 43, 52}, top.SwitchIDs())
}

func TestTopology_CrossingsGuarding(t *testing.T) {
	top := GreenLine()
	guarding := top.CrossingsGuarding(19)
	require.Len(t, guarding, 1)
	assert.Equal(t, CrossingID(1), guarding[0].ID)
	assert.Empty(t, top.CrossingsGuarding(20))
}

func TestTopology_IsSwitchEntry(t *testing.T) {
	top := GreenLine()
	assert.True(t, top.IsSwitchEntry(77))
	assert.False(t, top.IsSwitchEntry(78))
}

func TestLineByName(t *testing.T) {
	require.NotNil(t, LineByName("green"))
	assert.Equal(t, "Green Line", LineByName("Green Line").Line)
	assert.Nil(t, LineByName("Orange Line"))
}

func TestParseAspect(t *testing.T) {
	a, err := ParseAspect("SUPERGREEN")
	require.NoError(t, err)
	assert.Equal(t, AspectSuperGreen, a)

	_, err = ParseAspect("PURPLE")
	assert.Error(t, err)
}

func TestParseSwitchPosition_LegacyNames(t *testing.T) {
	p, err := ParseSwitchPosition("Alternate")
	require.NoError(t, err)
	assert.Equal(t, PositionDiverging, p)

	p, err = ParseSwitchPosition("Normal")
	require.NoError(t, err)
	assert.Equal(t, PositionStraight, p)

	p, err = ParseSwitchPosition("1")
	require.NoError(t, err)
	assert.Equal(t, PositionDiverging, p)
}

func TestUnitConversions_RoundTrip(t *testing.T) {
	assert.Equal(t, 45, MPSToMPH(MPHToMPS(45)))
	assert.Equal(t, 200, MetersToYards(YardsToMeters(200)))
	assert.Equal(t, 0, MPSToMPH(0))
}
