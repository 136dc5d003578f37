package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/trackworks/wayside/internal/plc"
	"github.com/trackworks/wayside/internal/testutil"
	"github.com/trackworks/wayside/internal/track"
	"github.com/trackworks/wayside/internal/trackmodel"
	"github.com/trackworks/wayside/internal/wayside"
)

// Result is the deterministic trace of one scenario run.
type Result struct {
	Lines []string
}

// Bytes renders the trace for golden comparison.
func (r *Result) Bytes() []byte {
	return []byte(strings.Join(r.Lines, "\n") + "\n")
}

// traceCTC collects relayed batches between steps.
type traceCTC struct {
	batches [][]wayside.StatusUpdate
}

func (c *traceCTC) ReceiveWaysideStatus(line string, updates []wayside.StatusUpdate) error {
	c.batches = append(c.batches, updates)
	return nil
}

func (c *traceCTC) drain() [][]wayside.StatusUpdate {
	out := c.batches
	c.batches = nil
	return out
}

// Run executes a scenario against a fresh controller, simulated track, and
// fake clock, and returns the trace.
func Run(sc *Scenario) (*Result, error) {
	top := track.LineByName(sc.Line)
	if top == nil {
		return nil, fmt.Errorf("scenario %q: unknown line %q", sc.Name, sc.Line)
	}
	sim := trackmodel.NewSim()
	clock := testutil.NewFakeClock()
	tracer := &traceCTC{}
	c := wayside.New(top, sim, tracer, wayside.Options{Clock: clock})

	res := &Result{Lines: []string{
		"scenario: " + sc.Name,
		"line: " + sc.Line,
	}}

	for i, step := range sc.Steps {
		desc, err := applyStep(c, sim, clock, step)
		if desc == "" {
			return nil, fmt.Errorf("scenario %q: step %d sets no action", sc.Name, i+1)
		}
		line := fmt.Sprintf("step %d: %s", i+1, desc)
		if err != nil {
			line += " -> error: " + err.Error()
		}
		res.Lines = append(res.Lines, line)
		for _, batch := range tracer.drain() {
			for _, u := range batch {
				res.Lines = append(res.Lines, "  relay "+formatUpdate(u))
			}
		}
	}

	rep := c.FailureReport()
	if len(rep.Active) == 0 {
		res.Lines = append(res.Lines, "failures: none")
	} else {
		res.Lines = append(res.Lines, "failures:")
		for _, r := range rep.Active {
			res.Lines = append(res.Lines, fmt.Sprintf("  %s block=%d", r.Kind, r.Block))
		}
	}
	return res, nil
}

func applyStep(c *wayside.Controller, sim *trackmodel.Sim, clock *testutil.FakeClock, s Step) (string, error) {
	switch {
	case s.Maintenance != nil:
		c.SetMaintenanceMode(*s.Maintenance)
		if *s.Maintenance {
			return "maintenance on", nil
		}
		return "maintenance off", nil

	case s.Occupy != nil:
		c.SetBlockOccupancy(track.BlockID(*s.Occupy), true)
		return fmt.Sprintf("occupy block %d", *s.Occupy), nil

	case s.Vacate != nil:
		c.SetBlockOccupancy(track.BlockID(*s.Vacate), false)
		return fmt.Sprintf("vacate block %d", *s.Vacate), nil

	case s.Advance != "":
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return "advance", err
		}
		clock.Advance(d)
		return "advance " + s.Advance, nil

	case s.SetSwitch != nil:
		pos, err := track.ParseSwitchPosition(s.SetSwitch.Position)
		if err != nil {
			return "set switch", err
		}
		desc := fmt.Sprintf("set switch %d %s", s.SetSwitch.ID, pos)
		return desc, c.SetSwitch(track.SwitchID(s.SetSwitch.ID), pos)

	case s.SetSignal != nil:
		a, err := track.ParseAspect(strings.ToUpper(s.SetSignal.Aspect))
		if err != nil {
			return "set signal", err
		}
		desc := fmt.Sprintf("set signal %d %s", s.SetSignal.Block, a)
		return desc, c.SetSignal(track.BlockID(s.SetSignal.Block), a)

	case s.SetCrossing != nil:
		g, err := track.ParseGateStatus(s.SetCrossing.Status)
		if err != nil {
			return "set crossing", err
		}
		desc := fmt.Sprintf("set crossing %d %s", s.SetCrossing.ID, g)
		return desc, c.SetCrossing(track.CrossingID(s.SetCrossing.ID), g)

	case s.Suggest != nil:
		c.ReceiveCTCSuggestion(track.BlockID(s.Suggest.Block), s.Suggest.SpeedMPS, s.Suggest.AuthorityM)
		return fmt.Sprintf("suggest block %d speed=%g authority=%g",
			s.Suggest.Block, s.Suggest.SpeedMPS, s.Suggest.AuthorityM), nil

	case s.Upload != "":
		p, ok := plc.Builtin(s.Upload, c.Topology())
		if !ok {
			return "upload program " + s.Upload, fmt.Errorf("unknown built-in program %q", s.Upload)
		}
		return "upload program " + s.Upload, c.UploadProgram(p)

	case s.UploadCommands != "":
		p, err := plc.ParseFlat("inline", strings.NewReader(s.UploadCommands), nil)
		if err != nil {
			return "upload commands", err
		}
		return "upload commands", c.UploadCommands(p)

	case s.ClearFailures:
		return "clear failures", c.ClearFailures()

	case s.Poll:
		return "poll", c.PollOnce()

	case s.KillSignal != nil:
		sim.KillSignal(c.Line(), track.BlockID(*s.KillSignal))
		return fmt.Sprintf("kill signal %d", *s.KillSignal), nil
	}
	return "", nil
}

func formatUpdate(u wayside.StatusUpdate) string {
	s := fmt.Sprintf("block=%d occupied=%t aspect=%s", u.Block, u.Occupied, u.Aspect)
	if u.SwitchPosition != nil {
		s += " switch=" + u.SwitchPosition.String()
	}
	if u.CrossingStatus != nil {
		s += " crossing=" + u.CrossingStatus.String()
	}
	return s
}
