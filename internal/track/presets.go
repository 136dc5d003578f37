package track

// Per-line presets. Block numbering, switch geometry, and crossing placement
// follow the layout drawings; the territory is the sub-range of the line this
// controller commands, with observe-only guard blocks at the edges where the
// line continues.

// GreenLine is the Green Line wayside territory: blocks 1-121 of a 150-block
// line, switches at 77 and 85, and a grade crossing guarding block 19.
func GreenLine() *Topology {
	t, err := NewTopology("Green Line", 1, 121, 150,
		map[SwitchID]SwitchTopology{
			77: {Entry: 77, Straight: 78, Diverging: 101},
			85: {Entry: 85, Straight: 86, Diverging: 100},
		},
		[]Crossing{
			{ID: 1, GuardBlocks: []BlockID{19}},
		},
	)
	if err != nil {
		panic(err) // presets are compile-time constants
	}
	return t
}

// RedLine is the Red Line wayside territory: blocks 35-71 of a 76-block line,
// switches at 38, 43, and 52, and a grade crossing guarding block 47. Guard
// blocks 34 and 72 flank the territory.
func RedLine() *Topology {
	t, err := NewTopology("Red Line", 35, 71, 76,
		map[SwitchID]SwitchTopology{
			38: {Entry: 38, Straight: 39, Diverging: 71},
			43: {Entry: 43, Straight: 44, Diverging: 67},
			52: {Entry: 52, Straight: 53, Diverging: 66},
		},
		[]Crossing{
			{ID: 1, GuardBlocks: []BlockID{47}},
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// BlueLine is the 15-block test loop with no switches or crossings.
func BlueLine() *Topology {
	t, err := NewTopology("Blue Line", 1, 15, 15, nil, nil)
	if err != nil {
		panic(err)
	}
	return t
}

// LineByName returns the preset topology for a line name, or nil if unknown.
func LineByName(name string) *Topology {
	switch name {
	case "Green Line", "green":
		return GreenLine()
	case "Red Line", "red":
		return RedLine()
	case "Blue Line", "blue":
		return BlueLine()
	default:
		return nil
	}
}
