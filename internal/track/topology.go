package track

import (
	"fmt"
	"sort"
)

// SwitchTopology is the fixed three-block geometry of a switch.
//
// INVARIANT: the three members never change after construction. A switch in
// PositionStraight connects Entry to Straight; PositionDiverging connects
// Entry to Diverging.
type SwitchTopology struct {
	Entry     BlockID
	Straight  BlockID
	Diverging BlockID
}

// Blocks returns the topology members in entry, straight, diverging order.
func (s SwitchTopology) Blocks() [3]BlockID {
	return [3]BlockID{s.Entry, s.Straight, s.Diverging}
}

// Crossing is a grade crossing and the blocks whose occupancy forces its gate
// active.
type Crossing struct {
	ID          CrossingID
	GuardBlocks []BlockID
}

// Guards reports whether block b is one of the crossing's guard blocks.
func (c Crossing) Guards(b BlockID) bool {
	for _, g := range c.GuardBlocks {
		if g == b {
			return true
		}
	}
	return false
}

// Topology is the static description of the territory one controller owns:
// its block range, switches, crossings, and the guard blocks just outside the
// territory that it observes but never commands.
type Topology struct {
	Line        string
	First, Last BlockID // owned territory, inclusive
	LineLast    BlockID // last block of the whole line (bounds guard blocks)

	switches  map[SwitchID]SwitchTopology
	crossings map[CrossingID]Crossing
}

// NewTopology builds a topology. Switch topology members and crossing guard
// blocks must fall inside the owned territory.
func NewTopology(line string, first, last, lineLast BlockID, switches map[SwitchID]SwitchTopology, crossings []Crossing) (*Topology, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid territory [%d, %d]", first, last)
	}
	if lineLast < last {
		lineLast = last
	}
	t := &Topology{
		Line:      line,
		First:     first,
		Last:      last,
		LineLast:  lineLast,
		switches:  make(map[SwitchID]SwitchTopology, len(switches)),
		crossings: make(map[CrossingID]Crossing, len(crossings)),
	}
	for id, sw := range switches {
		for _, b := range sw.Blocks() {
			if !t.Owns(b) {
				return nil, fmt.Errorf("switch %d references block %d outside territory [%d, %d]", id, b, first, last)
			}
		}
		t.switches[id] = sw
	}
	for _, c := range crossings {
		if len(c.GuardBlocks) == 0 {
			return nil, fmt.Errorf("crossing %d has no guard blocks", c.ID)
		}
		for _, b := range c.GuardBlocks {
			if !t.Owns(b) {
				return nil, fmt.Errorf("crossing %d guards block %d outside territory [%d, %d]", c.ID, b, first, last)
			}
		}
		t.crossings[c.ID] = c
	}
	return t, nil
}

// Owns reports whether block b is inside the controller's territory.
func (t *Topology) Owns(b BlockID) bool {
	return b >= t.First && b <= t.Last
}

// Blocks returns the owned block ids in ascending order.
func (t *Topology) Blocks() []BlockID {
	out := make([]BlockID, 0, t.Last-t.First+1)
	for b := t.First; b <= t.Last; b++ {
		out = append(out, b)
	}
	return out
}

// GuardBlocks returns the observe-only blocks at the territory edges: one
// below First and one above Last, where the line continues.
func (t *Topology) GuardBlocks() []BlockID {
	var out []BlockID
	if t.First > 1 {
		out = append(out, t.First-1)
	}
	if t.Last < t.LineLast {
		out = append(out, t.Last+1)
	}
	return out
}

// Adjacent returns the neighbors of block b that lie inside the territory.
func (t *Topology) Adjacent(b BlockID) []BlockID {
	var out []BlockID
	if t.Owns(b - 1) {
		out = append(out, b-1)
	}
	if t.Owns(b + 1) {
		out = append(out, b+1)
	}
	return out
}

// Switch looks up a switch topology.
func (t *Topology) Switch(id SwitchID) (SwitchTopology, bool) {
	sw, ok := t.switches[id]
	return sw, ok
}

// SwitchIDs returns the switch ids in ascending order. The order is the fixed
// index order PLC snapshots use.
func (t *Topology) SwitchIDs() []SwitchID {
	out := make([]SwitchID, 0, len(t.switches))
	for id := range t.switches {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Crossing looks up a crossing.
func (t *Topology) Crossing(id CrossingID) (Crossing, bool) {
	c, ok := t.crossings[id]
	return c, ok
}

// CrossingIDs returns the crossing ids in ascending order.
func (t *Topology) CrossingIDs() []CrossingID {
	out := make([]CrossingID, 0, len(t.crossings))
	for id := range t.crossings {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CrossingsGuarding returns the crossings that have block b as a guard block.
func (t *Topology) CrossingsGuarding(b BlockID) []Crossing {
	var out []Crossing
	for _, id := range t.CrossingIDs() {
		c := t.crossings[id]
		if c.Guards(b) {
			out = append(out, c)
		}
	}
	return out
}

// IsSwitchEntry reports whether block b is the entry block of any switch.
func (t *Topology) IsSwitchEntry(b BlockID) bool {
	_, ok := t.switches[SwitchID(b)]
	return ok
}
