package track

import "fmt"

// BlockID identifies a single track-circuit block. Block ids are positive and
// contiguous within a line.
type BlockID int

// SwitchID identifies a switch. By convention a switch carries the id of its
// entry block.
type SwitchID int

// CrossingID identifies a grade crossing.
type CrossingID int

// Aspect is the displayed state of a block signal.
type Aspect int

const (
	AspectRed Aspect = iota
	AspectYellow
	AspectGreen
	AspectSuperGreen
)

// String returns the canonical upper-case name used on the wire and in the
// flat PLC format.
func (a Aspect) String() string {
	switch a {
	case AspectRed:
		return "RED"
	case AspectYellow:
		return "YELLOW"
	case AspectGreen:
		return "GREEN"
	case AspectSuperGreen:
		return "SUPERGREEN"
	default:
		return fmt.Sprintf("Aspect(%d)", int(a))
	}
}

// ParseAspect parses a signal aspect name. Matching is exact against the
// canonical upper-case names; callers normalize case first (see plc package).
func ParseAspect(s string) (Aspect, error) {
	switch s {
	case "RED":
		return AspectRed, nil
	case "YELLOW":
		return AspectYellow, nil
	case "GREEN":
		return AspectGreen, nil
	case "SUPERGREEN":
		return AspectSuperGreen, nil
	default:
		return AspectRed, fmt.Errorf("invalid signal aspect %q", s)
	}
}

// SwitchPosition is the commanded or reported position of a switch.
type SwitchPosition int

const (
	// PositionStraight routes the entry block to the straight exit.
	// Operator-facing formats also accept the legacy name "Normal".
	PositionStraight SwitchPosition = iota
	// PositionDiverging routes the entry block to the diverging exit.
	// Operator-facing formats also accept the legacy name "Alternate".
	PositionDiverging
)

func (p SwitchPosition) String() string {
	if p == PositionDiverging {
		return "Diverging"
	}
	return "Straight"
}

// ParseSwitchPosition parses a switch position. Accepts the canonical names
// and the legacy 0/1 and Normal/Alternate spellings used by older PLC files.
func ParseSwitchPosition(s string) (SwitchPosition, error) {
	switch s {
	case "Straight", "Normal", "0":
		return PositionStraight, nil
	case "Diverging", "Alternate", "1":
		return PositionDiverging, nil
	default:
		return PositionStraight, fmt.Errorf("invalid switch position %q", s)
	}
}

// GateStatus is the state of a grade-crossing gate.
type GateStatus int

const (
	// GateInactive means the gate is raised and road traffic may cross.
	GateInactive GateStatus = iota
	// GateActive means the gate is lowered.
	GateActive
)

func (g GateStatus) String() string {
	if g == GateActive {
		return "Active"
	}
	return "Inactive"
}

// ParseGateStatus parses a crossing status. Accepts the canonical names and
// the true/false spellings used by flat PLC files.
func ParseGateStatus(s string) (GateStatus, error) {
	switch s {
	case "Active", "True":
		return GateActive, nil
	case "Inactive", "False":
		return GateInactive, nil
	default:
		return GateInactive, fmt.Errorf("invalid crossing status %q", s)
	}
}
