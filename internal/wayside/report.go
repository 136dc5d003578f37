package wayside

import (
	"github.com/trackworks/wayside/internal/registry"
	"github.com/trackworks/wayside/internal/track"
)

// SwitchStatus is one switch's position in a state report.
type SwitchStatus struct {
	ID       track.SwitchID
	Position track.SwitchPosition
}

// CrossingStatus is one crossing's gate state in a state report.
type CrossingStatus struct {
	ID     track.CrossingID
	Status track.GateStatus
}

// Report is a full point-in-time snapshot of the controller, suitable for
// operator displays and the CLI.
type Report struct {
	Line            string
	MaintenanceMode bool
	Program         string
	Blocks          []registry.BlockView
	Switches        []SwitchStatus
	Crossings       []CrossingStatus
}

// StateReport captures the territory state. Blocks, switches, and crossings
// come back in ascending id order.
func (c *Controller) StateReport() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{
		Line:            c.top.Line,
		MaintenanceMode: c.maintenance,
	}
	if c.program != nil {
		r.Program = c.program.Name()
	}
	for _, b := range c.top.Blocks() {
		v, _ := c.reg.Get(b)
		r.Blocks = append(r.Blocks, v)
	}
	for _, id := range c.top.SwitchIDs() {
		if p, ok := c.reg.SwitchPosition(id); ok {
			r.Switches = append(r.Switches, SwitchStatus{ID: id, Position: p})
		}
	}
	for _, id := range c.top.CrossingIDs() {
		if g, ok := c.reg.GateStatus(id); ok {
			r.Crossings = append(r.Crossings, CrossingStatus{ID: id, Status: g})
		}
	}
	return r
}

// BlockView reads one block. The second return is false outside the
// territory and its guard blocks.
func (c *Controller) BlockView(id track.BlockID) (registry.BlockView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reg.Get(id)
}
