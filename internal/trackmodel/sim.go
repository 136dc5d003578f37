package trackmodel

import (
	"fmt"
	"sync"

	"github.com/trackworks/wayside/internal/track"
)

// Sim is an in-memory track model. It stores whatever the controller pushes,
// lets tests and the demo CLI move trains by flipping occupancy, and can
// simulate dead actuators and transient I/O errors.
//
// Sim is safe for concurrent use; the poll loop and test code touch it from
// different goroutines.
type Sim struct {
	mu sync.Mutex

	blocks   map[simKey]BlockState
	switches map[simKey]track.SwitchPosition
	gates    map[simKey]bool
	commands map[simKey]TrainCommand

	deadSignals  map[simKey]bool
	deadSwitches map[simKey]bool
	pendingErr   error
}

// TrainCommand is the last broadcast command for a block.
type TrainCommand struct {
	SpeedMPH    int
	AuthorityYd int
}

type simKey struct {
	line string
	id   int
}

// NewSim creates an empty simulator. Blocks read as vacant with a RED aspect
// until written.
func NewSim() *Sim {
	return &Sim{
		blocks:       make(map[simKey]BlockState),
		switches:     make(map[simKey]track.SwitchPosition),
		gates:        make(map[simKey]bool),
		commands:     make(map[simKey]TrainCommand),
		deadSignals:  make(map[simKey]bool),
		deadSwitches: make(map[simKey]bool),
	}
}

func (s *Sim) GetBlock(line string, id track.BlockID) (BlockState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return BlockState{}, err
	}
	return s.blocks[simKey{line, int(id)}], nil
}

func (s *Sim) GetSwitch(line string, id track.SwitchID) (track.SwitchPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return track.PositionStraight, err
	}
	return s.switches[simKey{line, int(id)}], nil
}

func (s *Sim) SetSignalState(line string, id track.BlockID, a track.Aspect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	k := simKey{line, int(id)}
	if s.deadSignals[k] {
		// Command accepted, lamp never changes.
		return nil
	}
	st := s.blocks[k]
	st.Aspect = a
	s.blocks[k] = st
	return nil
}

func (s *Sim) SetSwitchPosition(line string, id track.SwitchID, p track.SwitchPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	k := simKey{line, int(id)}
	if s.deadSwitches[k] {
		return nil
	}
	s.switches[k] = p
	return nil
}

func (s *Sim) SetGateStatus(line string, id track.BlockID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.gates[simKey{line, int(id)}] = active
	return nil
}

func (s *Sim) BroadcastTrainCommand(line string, id track.BlockID, speedMPH, authorityYd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeErr(); err != nil {
		return err
	}
	s.commands[simKey{line, int(id)}] = TrainCommand{SpeedMPH: speedMPH, AuthorityYd: authorityYd}
	return nil
}

// SetOccupied moves a simulated train: flips a block's occupancy for the
// next poll.
func (s *Sim) SetOccupied(line string, id track.BlockID, occupied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := simKey{line, int(id)}
	st := s.blocks[k]
	st.Occupied = occupied
	s.blocks[k] = st
}

// GateStatus reads a gate back for assertions.
func (s *Sim) GateStatus(line string, id track.BlockID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gates[simKey{line, int(id)}]
}

// LastCommand returns the last broadcast train command for a block.
func (s *Sim) LastCommand(line string, id track.BlockID) (TrainCommand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[simKey{line, int(id)}]
	return cmd, ok
}

// KillSignal makes a signal stop responding: commands are accepted but the
// displayed aspect never changes. Used to provoke power-failure detection.
func (s *Sim) KillSignal(line string, id track.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadSignals[simKey{line, int(id)}] = true
}

// KillSwitch makes a switch machine stop responding.
func (s *Sim) KillSwitch(line string, id track.SwitchID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadSwitches[simKey{line, int(id)}] = true
}

// FailNext makes the next model call return a transient error.
func (s *Sim) FailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingErr = fmt.Errorf("track model: transient I/O failure")
}

func (s *Sim) takeErr() error {
	err := s.pendingErr
	s.pendingErr = nil
	return err
}
