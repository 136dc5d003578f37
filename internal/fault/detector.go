// Package fault watches occupancy transitions and actuator echoes for one
// wayside territory and turns implausible field behavior into failure
// records: broken rails, lying track circuits, and dead actuators.
//
// The detector is pure bookkeeping: it never mutates wayside state itself.
// Protective reactions (forcing RED, zeroing commands) are returned as
// Directives for the controller to apply through the interlock guard, so
// every mutation still passes the one enforcement point.
//
// The detector takes no locks; the owning controller serializes calls under
// its mutex.
package fault

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/trackworks/wayside/internal/track"
)

// Config carries the detection windows and retry limits. The values are
// hand-tuned operational parameters, not physical constants, so they are
// configuration rather than hard-coded behavior.
type Config struct {
	// BrokenRailWindow is how recently a neighbor must have seen an
	// occupancy transition for a new occupancy to be plausible.
	BrokenRailWindow time.Duration
	// TrackCircuitWindow is the minimum believable time between a stop
	// order and the block vacating.
	TrackCircuitWindow time.Duration
	// CommandTimeout is how long an actuator has to echo a command before
	// the attempt counts as a timeout.
	CommandTimeout time.Duration
	// MaxAttempts is the number of timeouts tolerated before a power
	// failure is raised.
	MaxAttempts int
	// HistoryLimit bounds the retained failure history.
	HistoryLimit int
}

// DefaultConfig returns the stock tuning: 12 s broken-rail window, 10 s
// track-circuit window, 5 s command timeout, 3 attempts, 50 history entries.
func DefaultConfig() Config {
	return Config{
		BrokenRailWindow:   12 * time.Second,
		TrackCircuitWindow: 10 * time.Second,
		CommandTimeout:     5 * time.Second,
		MaxAttempts:        3,
		HistoryLimit:       50,
	}
}

// TargetKind identifies the actuator class under verification.
type TargetKind string

const (
	TargetSignal TargetKind = "signal"
	TargetSwitch TargetKind = "switch"
)

// Verification is a pending actuator echo check.
type Verification struct {
	TargetID   int
	TargetKind TargetKind
	Expected   int // Aspect or SwitchPosition ordinal
	IssuedAt   time.Time
	Attempts   int // timeouts observed so far
}

type verifKey struct {
	kind TargetKind
	id   int
}

// Directive is a protective action the detector wants applied. The
// controller routes directives through the interlock guard.
type Directive struct {
	Block         track.BlockID
	ForceRed      bool
	ZeroSpeed     bool
	ZeroAuthority bool
}

// EchoReader reads actuator state back from the field, as last polled.
type EchoReader interface {
	SignalEcho(id track.BlockID) (track.Aspect, bool)
	SwitchEcho(id track.SwitchID) (track.SwitchPosition, bool)
}

// Detector is the per-territory fault detection state machine.
type Detector struct {
	cfg   Config
	clock Clock
	top   *track.Topology
	log   *slog.Logger

	records   map[recordKey]*Record
	history   []Record
	total     int
	occChange map[track.BlockID]time.Time
	stopOrder map[track.BlockID]time.Time
	pending   map[verifKey]*Verification
}

// New creates a detector. Zero-valued config fields fall back to the
// defaults.
func New(top *track.Topology, clock Clock, cfg Config, log *slog.Logger) *Detector {
	def := DefaultConfig()
	if cfg.BrokenRailWindow <= 0 {
		cfg.BrokenRailWindow = def.BrokenRailWindow
	}
	if cfg.TrackCircuitWindow <= 0 {
		cfg.TrackCircuitWindow = def.TrackCircuitWindow
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		cfg:       cfg,
		clock:     clock,
		top:       top,
		log:       log,
		records:   make(map[recordKey]*Record),
		occChange: make(map[track.BlockID]time.Time),
		stopOrder: make(map[track.BlockID]time.Time),
		pending:   make(map[verifKey]*Verification),
	}
}

// ObserveOccupancy feeds one occupancy transition into the detector. Must be
// called for every toggle on owned and guard blocks, in block-id order within
// a poll cycle. Returns protective directives to apply through the guard.
func (d *Detector) ObserveOccupancy(b track.BlockID, occupied bool) []Directive {
	now := d.clock.Now()
	var out []Directive

	if occupied {
		d.checkBrokenRail(b, now)
	} else {
		out = d.checkTrackCircuit(b, now)
	}

	d.occChange[b] = now
	return out
}

// checkBrokenRail raises a failure when block b becomes occupied but neither
// neighbor saw any occupancy transition inside the window: the "train"
// appeared out of nowhere.
func (d *Detector) checkBrokenRail(b track.BlockID, now time.Time) {
	if !d.top.Owns(b) {
		return
	}
	neighbors := d.neighbors(b)
	if len(neighbors) == 0 {
		return
	}
	for _, nb := range neighbors {
		if ts, ok := d.occChange[nb]; ok && now.Sub(ts) <= d.cfg.BrokenRailWindow {
			return
		}
	}
	d.raise(KindBrokenRail, b, fmt.Sprintf(
		"block %d became occupied with no recent activity on adjacent blocks", b))
}

// neighbors returns the observable blocks adjacent to b: territory neighbors
// plus guard blocks, so a train entering through a territory edge is not
// mistaken for a broken rail.
func (d *Detector) neighbors(b track.BlockID) []track.BlockID {
	out := d.top.Adjacent(b)
	for _, gb := range d.top.GuardBlocks() {
		if gb == b-1 || gb == b+1 {
			out = append(out, gb)
		}
	}
	return out
}

// checkTrackCircuit raises a failure when block b vacates implausibly soon
// after a stop order and returns the protective bubble: RED plus zero
// speed/authority on b-2..b+2.
func (d *Detector) checkTrackCircuit(b track.BlockID, now time.Time) []Directive {
	issued, ok := d.stopOrder[b]
	if !ok {
		return nil
	}
	delete(d.stopOrder, b)

	elapsed := now.Sub(issued)
	if elapsed >= d.cfg.TrackCircuitWindow {
		return nil
	}
	d.raise(KindTrackCircuit, b, fmt.Sprintf(
		"block %d vacated %.1fs after stop order", b, elapsed.Seconds()))

	var out []Directive
	for nb := b - 2; nb <= b+2; nb++ {
		if d.top.Owns(nb) {
			out = append(out, Directive{Block: nb, ForceRed: true, ZeroSpeed: true, ZeroAuthority: true})
		}
	}
	return out
}

// NoteStopOrder records that a stop (zero speed or zero authority) was
// commanded against a block. Implements the guard's Verifier contract. A
// repeated stop order against the same block keeps the original timestamp:
// the plausible-stop window is measured from when the train was first told
// to stop.
func (d *Detector) NoteStopOrder(b track.BlockID) {
	if _, ok := d.stopOrder[b]; !ok {
		d.stopOrder[b] = d.clock.Now()
	}
}

// ExpectSignal schedules echo verification for a signal command.
// Re-commanding the same signal restarts its verification.
func (d *Detector) ExpectSignal(id track.BlockID, a track.Aspect) {
	d.pending[verifKey{TargetSignal, int(id)}] = &Verification{
		TargetID:   int(id),
		TargetKind: TargetSignal,
		Expected:   int(a),
		IssuedAt:   d.clock.Now(),
	}
}

// ExpectSwitch schedules echo verification for a switch command.
func (d *Detector) ExpectSwitch(id track.SwitchID, p track.SwitchPosition) {
	d.pending[verifKey{TargetSwitch, int(id)}] = &Verification{
		TargetID:   int(id),
		TargetKind: TargetSwitch,
		Expected:   int(p),
		IssuedAt:   d.clock.Now(),
	}
}

// Review checks every pending verification against the field echoes. Called
// once per poll cycle. A matching echo clears the verification; a timeout
// counts an attempt, and once MaxAttempts timeouts have elapsed a power
// failure is raised. For a failed switch the returned directive zeroes the
// commanded speed on its entry block as a precaution.
func (d *Detector) Review(echo EchoReader) []Directive {
	if len(d.pending) == 0 {
		return nil
	}
	now := d.clock.Now()

	keys := make([]verifKey, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].id < keys[j].id
	})

	var out []Directive
	for _, k := range keys {
		v := d.pending[k]

		if d.echoMatches(k, v, echo) {
			delete(d.pending, k)
			continue
		}
		if now.Sub(v.IssuedAt) < d.cfg.CommandTimeout {
			continue
		}

		v.Attempts++
		if v.Attempts < d.cfg.MaxAttempts {
			v.IssuedAt = now
			d.log.Warn("actuator echo timeout",
				"kind", string(k.kind), "target", k.id, "attempt", v.Attempts)
			continue
		}

		d.raise(KindPowerFailure, track.BlockID(k.id), fmt.Sprintf(
			"%s %d did not respond after %d attempts", k.kind, k.id, v.Attempts))
		if k.kind == TargetSwitch {
			out = append(out, Directive{Block: track.BlockID(k.id), ZeroSpeed: true})
		}
		delete(d.pending, k)
	}
	return out
}

func (d *Detector) echoMatches(k verifKey, v *Verification, echo EchoReader) bool {
	switch k.kind {
	case TargetSignal:
		a, ok := echo.SignalEcho(track.BlockID(k.id))
		return ok && int(a) == v.Expected
	case TargetSwitch:
		p, ok := echo.SwitchEcho(track.SwitchID(k.id))
		return ok && int(p) == v.Expected
	default:
		return false
	}
}

// raise opens a failure record unless one with the same (kind, block) key is
// already open. A duplicate occurrence while the first is unresolved is
// suppressed.
func (d *Detector) raise(kind Kind, block track.BlockID, details string) {
	k := recordKey{kind, block}
	if _, open := d.records[k]; open {
		return
	}
	rec := newRecord(kind, block, d.clock.Now(), details)
	d.records[k] = &rec
	d.total++
	d.history = append(d.history, rec)
	if len(d.history) > d.cfg.HistoryLimit {
		d.history = d.history[len(d.history)-d.cfg.HistoryLimit:]
	}
	d.log.Error("failure detected", "kind", string(kind), "block", block, "details", details)
}

// Open reports whether a failure with the given key is currently open.
func (d *Detector) Open(kind Kind, block track.BlockID) bool {
	_, ok := d.records[recordKey{kind, block}]
	return ok
}

// Report summarizes current detector state. Active records are sorted by
// (kind, block) for stable output.
func (d *Detector) Report() Report {
	keys := make([]recordKey, 0, len(d.records))
	for k := range d.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].block < keys[j].block
	})
	active := make([]Record, 0, len(keys))
	for _, k := range keys {
		active = append(active, *d.records[k])
	}
	history := make([]Record, len(d.history))
	copy(history, d.history)
	return Report{
		Active:               active,
		History:              history,
		PendingVerifications: len(d.pending),
		TotalFailures:        d.total,
	}
}

// Clear resolves and drops all open records, pending verifications, and stop
// orders. Maintenance gating is the controller's responsibility. Safe to call
// repeatedly; a second call is a no-op.
func (d *Detector) Clear() {
	for k, rec := range d.records {
		rec.Resolved = true
		delete(d.records, k)
	}
	d.pending = make(map[verifKey]*Verification)
	d.stopOrder = make(map[track.BlockID]time.Time)
}
