package fault

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trackworks/wayside/internal/track"
)

// Kind categorizes a detected field-equipment failure.
type Kind string

const (
	// KindBrokenRail: a block registered occupancy with no recent activity
	// on either neighbor - a train cannot have arrived there.
	KindBrokenRail Kind = "broken_rail"

	// KindTrackCircuit: a block reported vacating implausibly soon after a
	// stop order, meaning the circuit is reporting garbage.
	KindTrackCircuit Kind = "track_circuit"

	// KindPowerFailure: an actuator never echoed its commanded value after
	// the configured number of timeouts.
	KindPowerFailure Kind = "power_failure"
)

// Record is one detected failure. Records are created by the Detector,
// retained in a bounded history, and cleared only in maintenance mode.
type Record struct {
	ID       string
	Kind     Kind
	Block    track.BlockID
	Time     time.Time
	Details  string
	Resolved bool
}

// recordKey dedupes open records: at most one open record per (kind, block).
type recordKey struct {
	kind  Kind
	block track.BlockID
}

func (k recordKey) String() string {
	return fmt.Sprintf("%s:%d", k.kind, k.block)
}

func newRecord(kind Kind, block track.BlockID, now time.Time, details string) Record {
	return Record{
		ID:      uuid.NewString(),
		Kind:    kind,
		Block:   block,
		Time:    now,
		Details: details,
	}
}

// Report is a point-in-time summary of the detector's state.
type Report struct {
	Active               []Record
	History              []Record // most recent HistoryLimit records
	PendingVerifications int
	TotalFailures        int
}
