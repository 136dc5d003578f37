// Package plc loads and evaluates wayside control programs.
//
// A program is a pure function of a fixed-shape snapshot of the territory.
// Three forms are supported: built-in programs selected by name, flat text
// command lists, and rule files compiled from CUE into a restricted rule
// set. No form executes arbitrary code; a program can only propose state,
// and every proposal still passes through the interlock guard before it
// touches the registry.
package plc

import "github.com/trackworks/wayside/internal/track"

// Snapshot is the read-only input to a program evaluation: the territory
// topology plus current and previous field state. Programs must not mutate
// the maps.
type Snapshot struct {
	Topology *track.Topology

	Occupancy map[track.BlockID]bool
	// Previous is the occupancy as of the prior poll cycle, so programs can
	// tell an advancing train from a stationary one.
	Previous  map[track.BlockID]bool
	Switches  map[track.SwitchID]track.SwitchPosition
	Signals   map[track.BlockID]track.Aspect
	Crossings map[track.CrossingID]track.GateStatus
	Stop      map[track.BlockID]bool
}

// Actions is the output of a program evaluation: the state it wants. Absent
// keys mean "leave as is". Speeds are mph, authorities yards.
type Actions struct {
	Switches    map[track.SwitchID]track.SwitchPosition
	Signals     map[track.BlockID]track.Aspect
	Crossings   map[track.CrossingID]track.GateStatus
	Speeds      map[track.BlockID]int
	Authorities map[track.BlockID]int
	Stop        map[track.BlockID]bool
}

// NewActions returns an Actions value with all maps allocated.
func NewActions() Actions {
	return Actions{
		Switches:    make(map[track.SwitchID]track.SwitchPosition),
		Signals:     make(map[track.BlockID]track.Aspect),
		Crossings:   make(map[track.CrossingID]track.GateStatus),
		Speeds:      make(map[track.BlockID]int),
		Authorities: make(map[track.BlockID]int),
		Stop:        make(map[track.BlockID]bool),
	}
}

// Empty reports whether the actions propose nothing.
func (a Actions) Empty() bool {
	return len(a.Switches) == 0 && len(a.Signals) == 0 && len(a.Crossings) == 0 &&
		len(a.Speeds) == 0 && len(a.Authorities) == 0 && len(a.Stop) == 0
}

// merge overlays o on top of a. Later writers win per target.
func (a Actions) merge(o Actions) {
	for k, v := range o.Switches {
		a.Switches[k] = v
	}
	for k, v := range o.Signals {
		a.Signals[k] = v
	}
	for k, v := range o.Crossings {
		a.Crossings[k] = v
	}
	for k, v := range o.Speeds {
		a.Speeds[k] = v
	}
	for k, v := range o.Authorities {
		a.Authorities[k] = v
	}
	for k, v := range o.Stop {
		a.Stop[k] = v
	}
}

// Program is operator-supplied control logic. Evaluate must be pure: same
// snapshot, same actions.
type Program interface {
	Name() string
	Evaluate(s Snapshot) Actions
}
