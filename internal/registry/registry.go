// Package registry holds the mutable wayside state for one controller: block
// occupancy, signal aspects, maintenance flags, commanded and suggested
// values, switch positions, and crossing gates.
//
// The registry is a plain state store. It performs no interlocking checks and
// takes no locks; every mutation must arrive through guard.Interlock, under
// the controller's mutex. Callers outside the guard get read-only views.
package registry

import (
	"time"

	"github.com/trackworks/wayside/internal/track"
)

// BlockView is a read-only snapshot of one block's state.
type BlockView struct {
	ID                   track.BlockID
	Occupied             bool
	Aspect               track.Aspect
	Broken               bool
	ClosedForMaintenance bool
	SuggestedSpeed       int // mph; -1 when the CTC has not suggested
	SuggestedAuthority   int // yards; -1 when the CTC has not suggested
	CommandedSpeed       int // mph
	CommandedAuthority   int // yards
	LastOccupancyChange  time.Time
}

type blockState struct {
	occupied   bool
	aspect     track.Aspect
	broken     bool
	closed     bool
	sugSpeed   int
	sugAuth    int
	cmdSpeed   int
	cmdAuth    int
	lastChange time.Time

	// prevOccupied is the rolling snapshot fed to PLC programs as the
	// previous_occupancy input. It trails occupied by exactly one toggle.
	prevOccupied bool
}

// Registry is the state store for one controller's territory plus its
// observe-only guard blocks.
type Registry struct {
	topology *track.Topology
	blocks   map[track.BlockID]*blockState

	switches  map[track.SwitchID]track.SwitchPosition
	crossings map[track.CrossingID]track.GateStatus
}

// New creates a registry for the given topology. All blocks start unoccupied
// with RED aspects; switches start Straight, crossings Inactive; suggested
// values start unset (-1).
func New(topology *track.Topology) *Registry {
	r := &Registry{
		topology:  topology,
		blocks:    make(map[track.BlockID]*blockState),
		switches:  make(map[track.SwitchID]track.SwitchPosition),
		crossings: make(map[track.CrossingID]track.GateStatus),
	}
	for _, b := range topology.Blocks() {
		r.blocks[b] = &blockState{sugSpeed: -1, sugAuth: -1}
	}
	for _, b := range topology.GuardBlocks() {
		r.blocks[b] = &blockState{sugSpeed: -1, sugAuth: -1}
	}
	for _, id := range topology.SwitchIDs() {
		r.switches[id] = track.PositionStraight
	}
	for _, id := range topology.CrossingIDs() {
		r.crossings[id] = track.GateInactive
	}
	return r
}

// Topology returns the immutable topology the registry was built from.
func (r *Registry) Topology() *track.Topology {
	return r.topology
}

// Get returns a read-only view of a block. The second return is false for
// blocks outside the territory and its guard blocks.
func (r *Registry) Get(id track.BlockID) (BlockView, bool) {
	st, ok := r.blocks[id]
	if !ok {
		return BlockView{}, false
	}
	return BlockView{
		ID:                   id,
		Occupied:             st.occupied,
		Aspect:               st.aspect,
		Broken:               st.broken,
		ClosedForMaintenance: st.closed,
		SuggestedSpeed:       st.sugSpeed,
		SuggestedAuthority:   st.sugAuth,
		CommandedSpeed:       st.cmdSpeed,
		CommandedAuthority:   st.cmdAuth,
		LastOccupancyChange:  st.lastChange,
	}, true
}

// SetOccupancy records field-reported occupancy for a block. When the value
// toggles, the change is timestamped and the previous-occupancy snapshot
// rolls forward. Returns whether the value actually changed.
//
// Guard-internal: callers go through guard.Interlock.SetBlockOccupancy.
func (r *Registry) SetOccupancy(id track.BlockID, occupied bool, now time.Time) bool {
	st, ok := r.blocks[id]
	if !ok || st.occupied == occupied {
		return false
	}
	st.prevOccupied = st.occupied
	st.occupied = occupied
	st.lastChange = now
	return true
}

// PreviousOccupancy returns the occupancy value the block held before its most
// recent toggle. Used as the previous_occupancy PLC input.
func (r *Registry) PreviousOccupancy(id track.BlockID) bool {
	if st, ok := r.blocks[id]; ok {
		return st.prevOccupied
	}
	return false
}

// SetAspect records the signal aspect for a block.
// Guard-internal.
func (r *Registry) SetAspect(id track.BlockID, a track.Aspect) bool {
	st, ok := r.blocks[id]
	if !ok || st.aspect == a {
		return false
	}
	st.aspect = a
	return true
}

// SetCommanded records commanded speed (mph) and authority (yards).
// Guard-internal.
func (r *Registry) SetCommanded(id track.BlockID, speed, authority int) {
	if st, ok := r.blocks[id]; ok {
		st.cmdSpeed = speed
		st.cmdAuth = authority
	}
}

// SetSuggested records the CTC's suggested speed (mph) and authority (yards).
// Guard-internal.
func (r *Registry) SetSuggested(id track.BlockID, speed, authority int) {
	if st, ok := r.blocks[id]; ok {
		st.sugSpeed = speed
		st.sugAuth = authority
	}
}

// SetBroken flags a block's rail as broken.
// Guard-internal.
func (r *Registry) SetBroken(id track.BlockID, broken bool) {
	if st, ok := r.blocks[id]; ok {
		st.broken = broken
	}
}

// SetClosed flags a block as closed for maintenance.
// Guard-internal.
func (r *Registry) SetClosed(id track.BlockID, closed bool) {
	if st, ok := r.blocks[id]; ok {
		st.closed = closed
	}
}

// SwitchPosition returns the recorded position of a switch.
func (r *Registry) SwitchPosition(id track.SwitchID) (track.SwitchPosition, bool) {
	p, ok := r.switches[id]
	return p, ok
}

// SetSwitchPosition records a switch position.
// Guard-internal.
func (r *Registry) SetSwitchPosition(id track.SwitchID, p track.SwitchPosition) bool {
	old, ok := r.switches[id]
	if !ok || old == p {
		return false
	}
	r.switches[id] = p
	return true
}

// GateStatus returns the recorded gate status of a crossing.
func (r *Registry) GateStatus(id track.CrossingID) (track.GateStatus, bool) {
	g, ok := r.crossings[id]
	return g, ok
}

// SetGateStatus records a crossing gate status.
// Guard-internal.
func (r *Registry) SetGateStatus(id track.CrossingID, g track.GateStatus) bool {
	old, ok := r.crossings[id]
	if !ok || old == g {
		return false
	}
	r.crossings[id] = g
	return true
}
