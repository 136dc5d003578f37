// Package wayside is the controller that owns one line territory: it runs
// the sync cycle against the track model, executes the loaded control
// program, enforces interlocking through the guard, watches for equipment
// failures, and relays consolidated state to the CTC and local subscribers.
package wayside

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trackworks/wayside/internal/fault"
	"github.com/trackworks/wayside/internal/guard"
	"github.com/trackworks/wayside/internal/plc"
	"github.com/trackworks/wayside/internal/registry"
	"github.com/trackworks/wayside/internal/track"
	"github.com/trackworks/wayside/internal/trackmodel"
)

// DefaultPollInterval is the sync cycle period.
const DefaultPollInterval = time.Second

// Options tune a controller. Zero values fall back to defaults.
type Options struct {
	Clock             fault.Clock
	Fault             fault.Config
	PollInterval      time.Duration
	GuardPollInterval time.Duration
	Logger            *slog.Logger
}

// Controller is one wayside instance. All state behind the mutex: the poll
// loops, the guard-block loop, and manual operator actions share the same
// critical section, so no caller ever observes a half-applied program.
type Controller struct {
	mu sync.Mutex

	top      *track.Topology
	reg      *registry.Registry
	lock     *guard.Interlock
	detector *fault.Detector
	model    trackmodel.Model
	ctc      CTC
	clock    fault.Clock
	log      *slog.Logger

	maintenance bool
	// programApply lifts the maintenance gate while a program's proposals
	// are applied: the program is interlocking authority, but its output
	// still passes every safety check.
	programApply bool
	program      plc.Program

	// stops tracks the blocks currently under a program stop flag, so a
	// release can restore suggested values.
	stops map[track.BlockID]bool

	batchDepth int
	dirty      map[track.BlockID]struct{}
	subs       map[int]chan Event
	nextSub    int

	pollInterval  time.Duration
	guardInterval time.Duration
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates a controller for a territory. The model and CTC may be shared
// with the controllers of other lines.
func New(top *track.Topology, model trackmodel.Model, ctc CTC, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = fault.SystemClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GuardPollInterval <= 0 {
		opts.GuardPollInterval = opts.PollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger.With("line", top.Line)

	c := &Controller{
		top:           top,
		reg:           registry.New(top),
		model:         model,
		ctc:           ctc,
		clock:         opts.Clock,
		log:           log,
		stops:         make(map[track.BlockID]bool),
		dirty:         make(map[track.BlockID]struct{}),
		subs:          make(map[int]chan Event),
		pollInterval:  opts.PollInterval,
		guardInterval: opts.GuardPollInterval,
	}
	c.detector = fault.New(top, opts.Clock, opts.Fault, log)
	c.lock = guard.New(c.reg, &fieldAdapter{line: top.Line, model: model, log: log},
		c.detector, func() bool { return c.maintenance || c.programApply }, log)
	return c
}

// Line returns the controlled line name.
func (c *Controller) Line() string { return c.top.Line }

// Topology returns the controlled territory.
func (c *Controller) Topology() *track.Topology { return c.top }

// SetMaintenanceMode flips the controller-wide gate for switch motion,
// crossing control, program upload, and failure clearing.
func (c *Controller) SetMaintenanceMode(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maintenance == on {
		return
	}
	c.maintenance = on
	c.log.Info("maintenance mode changed", "enabled", on)
}

// MaintenanceMode reports the current gate state.
func (c *Controller) MaintenanceMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maintenance
}

// ReceiveCTCSuggestion records dispatcher-suggested speed (m/s) and
// authority (meters) for a block, converted to the mph and yards the wayside
// works in. Suggestions never touch commanded values directly. Blocks
// outside the territory are ignored and logged, never written.
func (c *Controller) ReceiveCTCSuggestion(id track.BlockID, speedMPS, authorityM float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.top.Owns(id) {
		c.log.Warn("CTC suggestion outside territory, ignored", "block", id)
		return
	}
	mph := track.MPSToMPH(speedMPS)
	yd := track.MetersToYards(authorityM)
	c.reg.SetSuggested(id, mph, yd)
	c.notifyBlock(id)
}

// SetSwitch manually moves a switch. Maintenance-gated.
func (c *Controller) SetSwitch(id track.SwitchID, pos track.SwitchPosition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetSwitch(id, pos); err != nil {
		return err
	}
	if sw, ok := c.top.Switch(id); ok {
		c.notifyBlock(sw.Entry)
	}
	return nil
}

// SetCrossing manually changes a crossing gate. Maintenance-gated.
func (c *Controller) SetCrossing(id track.CrossingID, status track.GateStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetCrossing(id, status); err != nil {
		return err
	}
	if cr, ok := c.top.Crossing(id); ok && len(cr.GuardBlocks) > 0 {
		c.notifyBlock(cr.GuardBlocks[0])
	}
	return nil
}

// SetSignal manually sets a block signal.
func (c *Controller) SetSignal(id track.BlockID, a track.Aspect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetSignal(id, a); err != nil {
		return err
	}
	c.notifyBlock(id)
	return nil
}

// SetCommanded manually sets commanded speed (mph) and authority (yards).
func (c *Controller) SetCommanded(id track.BlockID, speedMPH, authorityYd int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetCommanded(id, speedMPH, authorityYd); err != nil {
		return err
	}
	c.notifyBlock(id)
	return nil
}

// SetBlockOccupancy injects an occupancy reading, as if the track model had
// reported it. Used by tests and the scenario harness; the live path arrives
// through the poll loops.
func (c *Controller) SetBlockOccupancy(id track.BlockID, occupied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beginBatch()
	changed := c.applyOccupancy(id, occupied)
	if changed {
		c.runProgram()
	}
	c.endBatch()
}

// SetBlockBroken flags a rail broken or repaired.
func (c *Controller) SetBlockBroken(id track.BlockID, broken bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetBroken(id, broken); err != nil {
		return err
	}
	c.notifyBlock(id)
	return nil
}

// SetBlockClosed closes a block for maintenance or reopens it.
func (c *Controller) SetBlockClosed(id track.BlockID, closed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.lock.SetClosed(id, closed); err != nil {
		return err
	}
	c.notifyBlock(id)
	return nil
}

// UploadProgram loads a control program. Requires maintenance mode. The
// program is evaluated once immediately inside a batch, then kept loaded and
// re-run on every occupancy change. Unsafe proposals are skipped and logged;
// they never abort the upload.
func (c *Controller) UploadProgram(p plc.Program) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.maintenance {
		return &guard.PermissionError{Op: "upload program"}
	}

	c.program = p
	c.beginBatch()
	c.applyActions(p.Evaluate(c.snapshot()))
	c.endBatch()
	c.log.Info("program loaded", "program", p.Name())
	return nil
}

// UploadCommands applies a flat text command list once. Requires maintenance
// mode. Unlike UploadProgram the commands are not kept loaded; a previously
// loaded program stays in place. A parse error aborts the whole upload with
// nothing applied.
func (c *Controller) UploadCommands(p *plc.FlatProgram) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.maintenance {
		return &guard.PermissionError{Op: "upload commands"}
	}

	c.beginBatch()
	c.applyActions(p.Evaluate(c.snapshot()))
	c.endBatch()
	c.log.Info("command list applied", "program", p.Name())
	return nil
}

// ProgramName returns the loaded program's name, or "" when none is loaded.
func (c *Controller) ProgramName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.program == nil {
		return ""
	}
	return c.program.Name()
}

// ClearFailures resolves all open failure records. Requires maintenance
// mode. Idempotent.
func (c *Controller) ClearFailures() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.maintenance {
		return &guard.PermissionError{Op: "clear failures"}
	}
	c.detector.Clear()
	c.log.Info("failure records cleared")
	return nil
}

// FailureReport summarizes detected failures.
func (c *Controller) FailureReport() fault.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.Report()
}

// Start launches the territory poll loop and the guard-block poll loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("controller for line %s already running", c.top.Line)
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(2)
	go c.pollLoop(ctx)
	go c.guardLoop(ctx)
	c.log.Info("controller started",
		"poll_interval", c.pollInterval, "guard_interval", c.guardInterval)
	return nil
}

// Stop halts both loops. In-flight cycles finish; no new cycle starts.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.log.Info("controller stopped")
}

// fieldAdapter routes guard pushes to the shared track model, scoped to one
// line.
type fieldAdapter struct {
	line  string
	model trackmodel.Model
	log   *slog.Logger
}

func (f *fieldAdapter) PushSignal(id track.BlockID, a track.Aspect) error {
	return f.model.SetSignalState(f.line, id, a)
}

func (f *fieldAdapter) PushSwitch(id track.SwitchID, p track.SwitchPosition) error {
	return f.model.SetSwitchPosition(f.line, id, p)
}

func (f *fieldAdapter) PushGate(block track.BlockID, active bool) error {
	return f.model.SetGateStatus(f.line, block, active)
}

func (f *fieldAdapter) PushTrainCommand(block track.BlockID, speedMPH, authorityYd int) error {
	return f.model.BroadcastTrainCommand(f.line, block, speedMPH, authorityYd)
}

// echoAdapter reads actuator echoes back from the track model for the fault
// detector's verification pass.
type echoAdapter struct {
	line  string
	model trackmodel.Model
}

func (e *echoAdapter) SignalEcho(id track.BlockID) (track.Aspect, bool) {
	st, err := e.model.GetBlock(e.line, id)
	if err != nil {
		return track.AspectRed, false
	}
	return st.Aspect, true
}

func (e *echoAdapter) SwitchEcho(id track.SwitchID) (track.SwitchPosition, bool) {
	p, err := e.model.GetSwitch(e.line, id)
	if err != nil {
		return track.PositionStraight, false
	}
	return p, true
}
