// Package guard implements the interlock layer: the single legitimate entry
// point for mutating switches, crossings, signals, and commanded values.
//
// Every code path that changes wayside state - the PLC engine, the CTC relay,
// the fault detector's protective actions, and manual operator actions - goes
// through Interlock, so no path can bypass the interlocking invariants:
//
//   - a switch never moves while any block of its topology is occupied
//   - a crossing gate never opens while a guard block is occupied
//   - an occupied block never holds nonzero commanded authority
//   - a broken or closed block never receives nonzero commanded speed
//
// The guard takes no locks; the owning controller serializes calls under its
// mutex.
package guard

import (
	"log/slog"
	"time"

	"github.com/trackworks/wayside/internal/registry"
	"github.com/trackworks/wayside/internal/track"
)

// Field is the command path to the track model. Push failures are transient
// I/O: the guard logs them and keeps its committed state; the actuator
// verifier catches a field that really did not respond.
type Field interface {
	PushSignal(id track.BlockID, a track.Aspect) error
	PushSwitch(id track.SwitchID, p track.SwitchPosition) error
	PushGate(block track.BlockID, active bool) error
	PushTrainCommand(block track.BlockID, speedMPH, authorityYd int) error
}

// Verifier receives the actuator commands the guard commits, so that field
// echoes can be checked against them on later poll cycles.
type Verifier interface {
	ExpectSignal(id track.BlockID, a track.Aspect)
	ExpectSwitch(id track.SwitchID, p track.SwitchPosition)
	NoteStopOrder(id track.BlockID)
}

// Interlock gates every mutation of the registry.
type Interlock struct {
	reg      *registry.Registry
	top      *track.Topology
	field    Field
	verifier Verifier
	maint    func() bool
	log      *slog.Logger
}

// New creates an interlock over the registry. maint reports whether the
// owning controller is in maintenance mode.
func New(reg *registry.Registry, field Field, verifier Verifier, maint func() bool, log *slog.Logger) *Interlock {
	if log == nil {
		log = slog.Default()
	}
	return &Interlock{
		reg:      reg,
		top:      reg.Topology(),
		field:    field,
		verifier: verifier,
		maint:    maint,
		log:      log,
	}
}

// SetSwitch moves a switch. Requires maintenance mode; fails with a
// SafetyViolation if any block of the switch topology is occupied. On success
// the position is committed, pushed to the field, and scheduled for actuator
// verification.
func (g *Interlock) SetSwitch(id track.SwitchID, pos track.SwitchPosition) error {
	const op = "set switch"
	sw, ok := g.top.Switch(id)
	if !ok {
		return &SafetyViolation{Op: op, Block: track.BlockID(id), Reason: "unknown switch"}
	}
	if !g.maint() {
		return &PermissionError{Op: op}
	}
	for _, b := range sw.Blocks() {
		if v, ok := g.reg.Get(b); ok && v.Occupied {
			return &SafetyViolation{Op: op, Block: b, Reason: "switch topology block occupied"}
		}
	}

	g.reg.SetSwitchPosition(id, pos)
	if err := g.field.PushSwitch(id, pos); err != nil {
		g.log.Warn("switch push failed", "switch", id, "position", pos.String(), "error", err)
	}
	g.verifier.ExpectSwitch(id, pos)
	g.log.Info("switch moved", "switch", id, "position", pos.String())
	return nil
}

// SetCrossing changes a crossing gate. Requires maintenance mode; opening the
// gate while any guard block is occupied is a SafetyViolation.
func (g *Interlock) SetCrossing(id track.CrossingID, status track.GateStatus) error {
	const op = "set crossing"
	c, ok := g.top.Crossing(id)
	if !ok {
		return &SafetyViolation{Op: op, Reason: "unknown crossing"}
	}
	if !g.maint() {
		return &PermissionError{Op: op}
	}
	if status == track.GateInactive {
		for _, b := range c.GuardBlocks {
			if v, ok := g.reg.Get(b); ok && v.Occupied {
				return &SafetyViolation{Op: op, Block: b, Reason: "crossing guard block occupied"}
			}
		}
	}

	g.commitGate(c, status)
	g.log.Info("crossing set", "crossing", id, "status", status.String())
	return nil
}

// SetSignal sets a block signal aspect, pushes it to the field, and schedules
// actuator verification. Signals carry no maintenance gate: the PLC engine
// and the fault detector's protective actions set them during normal running.
func (g *Interlock) SetSignal(id track.BlockID, a track.Aspect) error {
	const op = "set signal"
	if !g.top.Owns(id) {
		return &SafetyViolation{Op: op, Block: id, Reason: "block outside controlled territory"}
	}

	g.reg.SetAspect(id, a)
	if err := g.field.PushSignal(id, a); err != nil {
		g.log.Warn("signal push failed", "block", id, "aspect", a.String(), "error", err)
	}
	g.verifier.ExpectSignal(id, a)
	return nil
}

// SetCommanded sets commanded speed (mph) and authority (yards) for a block.
// Nonzero speed on a broken or closed block, and nonzero authority on an
// occupied block, are SafetyViolations. Commanding zero speed or zero
// authority is recorded as a stop order for track-circuit failure detection.
func (g *Interlock) SetCommanded(id track.BlockID, speedMPH, authorityYd int) error {
	const op = "set commanded"
	if !g.top.Owns(id) {
		return &SafetyViolation{Op: op, Block: id, Reason: "block outside controlled territory"}
	}
	v, _ := g.reg.Get(id)
	if speedMPH > 0 && (v.Broken || v.ClosedForMaintenance) {
		return &SafetyViolation{Op: op, Block: id, Reason: "nonzero speed on broken or closed block"}
	}
	if authorityYd > 0 && v.Occupied {
		return &SafetyViolation{Op: op, Block: id, Reason: "nonzero authority on occupied block"}
	}

	g.reg.SetCommanded(id, speedMPH, authorityYd)
	if speedMPH == 0 || authorityYd == 0 {
		g.verifier.NoteStopOrder(id)
	}
	if err := g.field.PushTrainCommand(id, speedMPH, authorityYd); err != nil {
		g.log.Warn("train command push failed", "block", id, "error", err)
	}
	return nil
}

// SetBlockOccupancy records field-reported occupancy. This is field truth,
// not a command, so it is always permitted - including on observe-only guard
// blocks. When a block becomes occupied its commanded authority is forced to
// zero in the same operation, and any crossing guarding it is forced Active
// regardless of maintenance mode. Returns whether the occupancy changed.
func (g *Interlock) SetBlockOccupancy(id track.BlockID, occupied bool, now time.Time) bool {
	changed := g.reg.SetOccupancy(id, occupied, now)
	if !changed {
		return false
	}

	if occupied && g.top.Owns(id) {
		v, _ := g.reg.Get(id)
		if v.CommandedAuthority != 0 {
			// Revoking authority here is an automatic reaction to field
			// truth, not an issued stop order, so the track-circuit
			// verifier is not told about it. A train rolling through
			// with authority is normal running.
			g.reg.SetCommanded(id, v.CommandedSpeed, 0)
			if err := g.field.PushTrainCommand(id, v.CommandedSpeed, 0); err != nil {
				g.log.Warn("train command push failed", "block", id, "error", err)
			}
		}
	}

	// Crossing safety cannot be overridden: occupancy of a guard block
	// forces the gate down, vacating every guard block raises it again.
	for _, c := range g.top.CrossingsGuarding(id) {
		if occupied {
			g.commitGate(c, track.GateActive)
		} else if !g.anyGuardBlockOccupied(c) {
			g.commitGate(c, track.GateInactive)
		}
	}
	return true
}

// SetBroken flags a block's rail as broken or repaired.
func (g *Interlock) SetBroken(id track.BlockID, broken bool) error {
	if !g.top.Owns(id) {
		return &SafetyViolation{Op: "set broken", Block: id, Reason: "block outside controlled territory"}
	}
	g.reg.SetBroken(id, broken)
	return nil
}

// SetClosed closes a block for maintenance or reopens it.
func (g *Interlock) SetClosed(id track.BlockID, closed bool) error {
	if !g.top.Owns(id) {
		return &SafetyViolation{Op: "set closed", Block: id, Reason: "block outside controlled territory"}
	}
	g.reg.SetClosed(id, closed)
	return nil
}

func (g *Interlock) anyGuardBlockOccupied(c track.Crossing) bool {
	for _, b := range c.GuardBlocks {
		if v, ok := g.reg.Get(b); ok && v.Occupied {
			return true
		}
	}
	return false
}

func (g *Interlock) commitGate(c track.Crossing, status track.GateStatus) {
	if !g.reg.SetGateStatus(c.ID, status) {
		return
	}
	for _, b := range c.GuardBlocks {
		if err := g.field.PushGate(b, status == track.GateActive); err != nil {
			g.log.Warn("gate push failed", "crossing", c.ID, "block", b, "error", err)
		}
	}
}
