package wayside

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/trackworks/wayside/internal/fault"
	"github.com/trackworks/wayside/internal/plc"
	"github.com/trackworks/wayside/internal/track"
)

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// Per-cycle errors are logged and the next cycle retries.
			if err := c.PollOnce(); err != nil {
				c.log.Warn("poll cycle failed", "error", err)
			}
		}
	}
}

func (c *Controller) guardLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.guardInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.GuardPollOnce(); err != nil {
				c.log.Warn("guard-block poll failed", "error", err)
			}
		}
	}
}

// PollOnce runs one sync cycle: pull field state for every owned block,
// apply occupancy deltas in block-id order, then signal deltas, run actuator
// verification, re-run the loaded program if occupancy changed, and flush
// one consolidated notification. Exported so tests and the scenario harness
// can drive cycles deterministically.
func (c *Controller) PollOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle()
}

type occDelta struct {
	block    track.BlockID
	occupied bool
}

type sigDelta struct {
	block  track.BlockID
	aspect track.Aspect
}

func (c *Controller) cycle() error {
	var occ []occDelta
	var sig []sigDelta
	for _, b := range c.top.Blocks() {
		st, err := c.model.GetBlock(c.top.Line, b)
		if err != nil {
			return fmt.Errorf("poll block %d: %w", b, err)
		}
		v, _ := c.reg.Get(b)
		if st.Occupied != v.Occupied {
			occ = append(occ, occDelta{block: b, occupied: st.Occupied})
		}
		if st.Aspect != v.Aspect {
			sig = append(sig, sigDelta{block: b, aspect: st.Aspect})
		}
	}

	c.beginBatch()
	defer c.endBatch()

	occChanged := false
	for _, d := range occ {
		if c.applyOccupancy(d.block, d.occupied) {
			occChanged = true
		}
	}
	for _, d := range sig {
		if c.reg.SetAspect(d.block, d.aspect) {
			c.notifyBlock(d.block)
		}
	}

	c.applyDirectives(c.detector.Review(&echoAdapter{line: c.top.Line, model: c.model}))

	if occChanged {
		c.runProgram()
	}
	return nil
}

// GuardPollOnce polls the observe-only guard blocks at the territory edges,
// so approaching trains are seen before they enter.
func (c *Controller) GuardPollOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beginBatch()
	defer c.endBatch()

	for _, b := range c.top.GuardBlocks() {
		st, err := c.model.GetBlock(c.top.Line, b)
		if err != nil {
			return fmt.Errorf("poll guard block %d: %w", b, err)
		}
		v, _ := c.reg.Get(b)
		if st.Occupied != v.Occupied {
			c.applyOccupancy(b, st.Occupied)
		}
	}
	return nil
}

// applyOccupancy routes one occupancy transition: the guard applies its
// forced reactions first, the fault detector observes the transition before
// anything is relayed outward, and any protective directives go back through
// the guard.
func (c *Controller) applyOccupancy(id track.BlockID, occupied bool) bool {
	if !c.lock.SetBlockOccupancy(id, occupied, c.clock.Now()) {
		return false
	}
	c.applyDirectives(c.detector.ObserveOccupancy(id, occupied))
	c.notifyBlock(id)
	return true
}

func (c *Controller) applyDirectives(ds []fault.Directive) {
	for _, d := range ds {
		if d.ForceRed {
			if err := c.lock.SetSignal(d.Block, track.AspectRed); err != nil {
				c.log.Warn("protective signal drop failed", "block", d.Block, "error", err)
			} else {
				c.notifyBlock(d.Block)
			}
		}
		if d.ZeroSpeed || d.ZeroAuthority {
			v, ok := c.reg.Get(d.Block)
			if !ok {
				continue
			}
			speed, auth := v.CommandedSpeed, v.CommandedAuthority
			if d.ZeroSpeed {
				speed = 0
			}
			if d.ZeroAuthority {
				auth = 0
			}
			if err := c.lock.SetCommanded(d.Block, speed, auth); err != nil {
				c.log.Warn("protective command failed", "block", d.Block, "error", err)
			} else {
				c.notifyBlock(d.Block)
			}
		}
	}
}

// runProgram re-evaluates the loaded program against the current snapshot.
// Suppressed in maintenance mode so the program does not fight manual work.
func (c *Controller) runProgram() {
	if c.program == nil || c.maintenance {
		return
	}
	c.applyActions(c.program.Evaluate(c.snapshot()))
}

// snapshot captures the program input: current and previous occupancy for
// owned and guard blocks, plus switch, signal, crossing, and stop state.
func (c *Controller) snapshot() plc.Snapshot {
	s := plc.Snapshot{
		Topology:  c.top,
		Occupancy: make(map[track.BlockID]bool),
		Previous:  make(map[track.BlockID]bool),
		Switches:  make(map[track.SwitchID]track.SwitchPosition),
		Signals:   make(map[track.BlockID]track.Aspect),
		Crossings: make(map[track.CrossingID]track.GateStatus),
		Stop:      make(map[track.BlockID]bool),
	}
	for _, b := range c.top.Blocks() {
		v, _ := c.reg.Get(b)
		s.Occupancy[b] = v.Occupied
		s.Previous[b] = c.reg.PreviousOccupancy(b)
		s.Signals[b] = v.Aspect
		s.Stop[b] = c.stops[b]
	}
	for _, b := range c.top.GuardBlocks() {
		v, _ := c.reg.Get(b)
		s.Occupancy[b] = v.Occupied
		s.Previous[b] = c.reg.PreviousOccupancy(b)
	}
	for _, id := range c.top.SwitchIDs() {
		if p, ok := c.reg.SwitchPosition(id); ok {
			s.Switches[id] = p
		}
	}
	for _, id := range c.top.CrossingIDs() {
		if g, ok := c.reg.GateStatus(id); ok {
			s.Crossings[id] = g
		}
	}
	return s
}

// applyActions applies a program's proposals through the guard. The
// maintenance gate is lifted for the duration - the program is the
// interlocking authority - but every safety check still runs, and an unsafe
// proposal is skipped and logged without aborting the rest.
func (c *Controller) applyActions(a plc.Actions) {
	c.programApply = true
	defer func() { c.programApply = false }()

	for _, id := range sortedKeys(a.Switches) {
		want := a.Switches[id]
		if cur, ok := c.reg.SwitchPosition(id); ok && cur == want {
			continue
		}
		if err := c.lock.SetSwitch(id, want); err != nil {
			c.log.Warn("program switch proposal skipped", "switch", id, "error", err)
			continue
		}
		if sw, ok := c.top.Switch(id); ok {
			c.notifyBlock(sw.Entry)
		}
	}

	for _, id := range sortedKeys(a.Signals) {
		want := a.Signals[id]
		if v, ok := c.reg.Get(id); ok && v.Aspect == want {
			continue
		}
		if err := c.lock.SetSignal(id, want); err != nil {
			c.log.Warn("program signal proposal skipped", "block", id, "error", err)
			continue
		}
		c.notifyBlock(id)
	}

	for _, id := range sortedKeys(a.Crossings) {
		want := a.Crossings[id]
		if cur, ok := c.reg.GateStatus(id); ok && cur == want {
			continue
		}
		if err := c.lock.SetCrossing(id, want); err != nil {
			c.log.Warn("program crossing proposal skipped", "crossing", id, "error", err)
			continue
		}
		if cr, ok := c.top.Crossing(id); ok && len(cr.GuardBlocks) > 0 {
			c.notifyBlock(cr.GuardBlocks[0])
		}
	}

	c.applyCommanded(a)
}

// applyCommanded merges a program's speed, authority, and stop proposals
// into per-block commanded values. A stop flag forces zero speed and
// authority; releasing it restores the CTC-suggested values where present.
func (c *Controller) applyCommanded(a plc.Actions) {
	blocks := make(map[track.BlockID]struct{})
	for b := range a.Speeds {
		blocks[b] = struct{}{}
	}
	for b := range a.Authorities {
		blocks[b] = struct{}{}
	}
	for b := range a.Stop {
		blocks[b] = struct{}{}
	}
	ids := make([]track.BlockID, 0, len(blocks))
	for b := range blocks {
		ids = append(ids, b)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, b := range ids {
		v, ok := c.reg.Get(b)
		if !ok || !c.top.Owns(b) {
			c.log.Warn("program command proposal outside territory, skipped", "block", b)
			continue
		}
		speed, auth := v.CommandedSpeed, v.CommandedAuthority
		if s, ok := a.Speeds[b]; ok {
			speed = s
		}
		if y, ok := a.Authorities[b]; ok {
			auth = y
		}
		stopped, hasStop := a.Stop[b]
		if hasStop {
			if stopped {
				speed, auth = 0, 0
				c.stops[b] = true
			} else {
				delete(c.stops, b)
				if v.SuggestedSpeed >= 0 {
					speed = v.SuggestedSpeed
				}
				if v.SuggestedAuthority >= 0 {
					auth = v.SuggestedAuthority
				}
			}
		}
		if v.Occupied && auth > 0 {
			// The guard forbids authority onto an occupied block; grant
			// the speed alone.
			auth = 0
		}
		// A stop order must reach the verifier even when the values are
		// already zero, so it is never skipped as a no-op.
		if !hasStop && speed == v.CommandedSpeed && auth == v.CommandedAuthority {
			continue
		}
		if err := c.lock.SetCommanded(b, speed, auth); err != nil {
			c.log.Warn("program command proposal skipped", "block", b, "error", err)
			continue
		}
		c.notifyBlock(b)
	}
}

func sortedKeys[K ~int, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
