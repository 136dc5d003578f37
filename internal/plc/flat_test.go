package plc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackworks/wayside/internal/track"
)

func TestParseFlat_AllCommandForms(t *testing.T) {
	src := `
# startup program for switch territory
SWITCH 77 Normal
SWITCH 85 Alternate
CROSSING 1 Active
SIGNAL 70 Red
SIGNAL 71 SuperGreen
CMD_SPEED 70 25
CMD_AUTH 70 300
`
	p, err := ParseFlat("startup", strings.NewReader(src), nil)
	require.NoError(t, err)
	assert.Equal(t, "startup", p.Name())

	a := p.Evaluate(Snapshot{})
	assert.Equal(t, track.PositionStraight, a.Switches[77])
	assert.Equal(t, track.PositionDiverging, a.Switches[85])
	assert.Equal(t, track.GateActive, a.Crossings[1])
	assert.Equal(t, track.AspectRed, a.Signals[70])
	assert.Equal(t, track.AspectSuperGreen, a.Signals[71])
	assert.Equal(t, 25, a.Speeds[70])
	assert.Equal(t, 300, a.Authorities[70])
}

func TestParseFlat_CaseAndSpellingVariants(t *testing.T) {
	src := `
switch 77 straight
Switch 85 1
crossing 1 true
signal 70 green
`
	p, err := ParseFlat("lax", strings.NewReader(src), nil)
	require.NoError(t, err)

	a := p.Evaluate(Snapshot{})
	assert.Equal(t, track.PositionStraight, a.Switches[77])
	assert.Equal(t, track.PositionDiverging, a.Switches[85])
	assert.Equal(t, track.GateActive, a.Crossings[1])
	assert.Equal(t, track.AspectGreen, a.Signals[70])
}

func TestParseFlat_UnknownCommandSkipped(t *testing.T) {
	src := `
SWITCH 77 Normal
BEACON 12 on
SIGNAL 70 Red
`
	p, err := ParseFlat("mixed", strings.NewReader(src), nil)
	require.NoError(t, err, "unknown commands must not abort the upload")

	a := p.Evaluate(Snapshot{})
	assert.Len(t, a.Switches, 1)
	assert.Len(t, a.Signals, 1)
}

func TestParseFlat_LaterLineWins(t *testing.T) {
	src := "SIGNAL 70 Green\nSIGNAL 70 Red\n"
	p, err := ParseFlat("override", strings.NewReader(src), nil)
	require.NoError(t, err)
	assert.Equal(t, track.AspectRed, p.Evaluate(Snapshot{}).Signals[70])
}

func TestParseFlat_MalformedArgumentsAbort(t *testing.T) {
	cases := map[string]string{
		"bad id":        "SWITCH seventy Normal",
		"bad position":  "SWITCH 77 Sideways",
		"bad aspect":    "SIGNAL 70 Purple",
		"bad speed":     "CMD_SPEED 70 fast",
		"negative":      "CMD_AUTH 70 -5",
		"missing args":  "CROSSING 1",
		"too many args": "SIGNAL 70 Red Red",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFlat("bad", strings.NewReader(src), nil)
			require.Error(t, err)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, 1, perr.Line)
		})
	}
}

func TestParseFlat_ErrorReportsLine(t *testing.T) {
	src := "SIGNAL 70 Red\n\n# comment\nSWITCH 77 Sideways\n"
	_, err := ParseFlat("lines", strings.NewReader(src), nil)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.Line)
	assert.Contains(t, perr.Error(), "lines:4:")
}
