package wayside

import (
	"sort"

	"github.com/trackworks/wayside/internal/track"
)

// StatusUpdate is one block's slice of a consolidated wayside-status push.
// SwitchPosition is set when the block is a switch entry; CrossingStatus when
// a crossing guards the block.
type StatusUpdate struct {
	Block          track.BlockID
	Occupied       bool
	Aspect         track.Aspect
	SwitchPosition *track.SwitchPosition
	CrossingStatus *track.GateStatus
}

// Event is one consolidated state change delivered to local subscribers.
type Event struct {
	Line    string
	Updates []StatusUpdate
}

// CTC is the central dispatcher collaborator. One CTC instance is shared by
// every controller; pushes are scoped by line.
type CTC interface {
	ReceiveWaysideStatus(line string, updates []StatusUpdate) error
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind loses updates rather than stalling the poll loop.
const subscriberBuffer = 16

// Subscribe registers a listener for consolidated state changes. The
// returned cancel function unregisters it and closes the channel.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// notifyBlock records that a block's state changed. Outside a batch the
// change flushes immediately; inside one it is held for a single
// consolidated flush at batch end.
func (c *Controller) notifyBlock(id track.BlockID) {
	c.dirty[id] = struct{}{}
	if c.batchDepth == 0 {
		c.flush()
	}
}

func (c *Controller) beginBatch() {
	c.batchDepth++
}

func (c *Controller) endBatch() {
	c.batchDepth--
	if c.batchDepth == 0 {
		c.flush()
	}
}

// flush builds the consolidated update for every dirty block, fans it out to
// subscribers, and relays it to the CTC. Called with the mutex held.
func (c *Controller) flush() {
	if len(c.dirty) == 0 {
		return
	}
	blocks := make([]track.BlockID, 0, len(c.dirty))
	for b := range c.dirty {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	c.dirty = make(map[track.BlockID]struct{})

	updates := make([]StatusUpdate, 0, len(blocks))
	for _, b := range blocks {
		updates = append(updates, c.buildUpdate(b))
	}

	ev := Event{Line: c.top.Line, Updates: updates}
	for id, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			c.log.Warn("subscriber lagging, dropping update", "subscriber", id)
		}
	}

	if c.ctc != nil {
		if err := c.ctc.ReceiveWaysideStatus(c.top.Line, updates); err != nil {
			c.log.Warn("CTC relay failed", "error", err)
		}
	}
}

func (c *Controller) buildUpdate(b track.BlockID) StatusUpdate {
	v, _ := c.reg.Get(b)
	u := StatusUpdate{Block: b, Occupied: v.Occupied, Aspect: v.Aspect}

	for _, id := range c.top.SwitchIDs() {
		sw, _ := c.top.Switch(id)
		if sw.Entry == b {
			if pos, ok := c.reg.SwitchPosition(id); ok {
				p := pos
				u.SwitchPosition = &p
			}
		}
	}
	for _, cr := range c.top.CrossingsGuarding(b) {
		if g, ok := c.reg.GateStatus(cr.ID); ok {
			status := g
			u.CrossingStatus = &status
		}
	}
	return u
}
