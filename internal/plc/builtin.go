package plc

import (
	"sort"

	"github.com/trackworks/wayside/internal/track"
)

// Built-in programs ship with the controller and are selected by name, so a
// territory can run standard interlocking logic without any uploaded file.

// Builtin returns the named built-in program bound to a topology.
func Builtin(name string, top *track.Topology) (Program, bool) {
	switch name {
	case "block-ahead":
		return &blockAhead{top: top}, true
	default:
		return nil, false
	}
}

// BuiltinNames returns the available built-in program names, sorted.
func BuiltinNames() []string {
	names := []string{"block-ahead"}
	sort.Strings(names)
	return names
}

// blockAhead is the standard two-block separation program:
//
//   - A block's signal shows RED when the block or the one ahead is
//     occupied, YELLOW when the second block ahead is occupied, and GREEN
//     otherwise.
//   - An occupied block gets a stop flag when the second block ahead is also
//     occupied, and the flag clears once that block vacates.
//   - Crossing gates go active while any guard block is occupied.
type blockAhead struct {
	top *track.Topology
}

func (p *blockAhead) Name() string { return "block-ahead" }

func (p *blockAhead) Evaluate(s Snapshot) Actions {
	out := NewActions()

	for _, b := range p.top.Blocks() {
		switch {
		case s.Occupancy[b] || s.Occupancy[b+1]:
			out.Signals[b] = track.AspectRed
		case s.Occupancy[b+2]:
			out.Signals[b] = track.AspectYellow
		default:
			out.Signals[b] = track.AspectGreen
		}

		if s.Occupancy[b] {
			out.Stop[b] = s.Occupancy[b+2]
		}
	}

	for _, id := range p.top.CrossingIDs() {
		crossing, _ := p.top.Crossing(id)
		active := false
		for _, gb := range crossing.GuardBlocks {
			if s.Occupancy[gb] {
				active = true
				break
			}
		}
		if active {
			out.Crossings[id] = track.GateActive
		} else {
			out.Crossings[id] = track.GateInactive
		}
	}
	return out
}
