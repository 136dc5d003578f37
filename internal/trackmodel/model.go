// Package trackmodel defines the controller's view of the physical (or
// simulated) track, and an in-memory simulator used by tests and the demo
// CLI.
package trackmodel

import "github.com/trackworks/wayside/internal/track"

// BlockState is the per-block field reading a poll returns.
type BlockState struct {
	Occupied bool
	Aspect   track.Aspect
}

// Model is the external track interface. One model instance is shared by the
// controllers of every line; calls are scoped by line name, and each
// controller only writes inside its own territory.
//
// All methods may fail transiently. The sync engine treats errors as
// per-cycle events: it logs them and the next cycle retries.
type Model interface {
	// GetBlock reads occupancy and the displayed signal aspect.
	GetBlock(line string, id track.BlockID) (BlockState, error)
	// GetSwitch reads the physical switch position back.
	GetSwitch(line string, id track.SwitchID) (track.SwitchPosition, error)

	SetSignalState(line string, id track.BlockID, a track.Aspect) error
	SetSwitchPosition(line string, id track.SwitchID, p track.SwitchPosition) error
	SetGateStatus(line string, id track.BlockID, active bool) error
	// BroadcastTrainCommand sends commanded speed (mph) and authority
	// (yards) toward any train on the block.
	BroadcastTrainCommand(line string, id track.BlockID, speedMPH, authorityYd int) error
}
