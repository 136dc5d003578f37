// Package harness runs YAML-defined wayside scenarios against a simulated
// track and compares their traces to golden files. Scenarios double as
// executable documentation: each step is an operator or field action, and
// the trace records what the controller relayed and which failures it
// detected.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML scenario file.
type Scenario struct {
	Name  string `yaml:"name"`
	Line  string `yaml:"line"`
	Steps []Step `yaml:"steps"`
}

// Step is one action. Exactly one field should be set per step.
type Step struct {
	Maintenance *bool  `yaml:"maintenance,omitempty"`
	Occupy      *int   `yaml:"occupy,omitempty"`
	Vacate      *int   `yaml:"vacate,omitempty"`
	Advance     string `yaml:"advance,omitempty"`

	SetSwitch   *SwitchStep   `yaml:"set_switch,omitempty"`
	SetSignal   *SignalStep   `yaml:"set_signal,omitempty"`
	SetCrossing *CrossingStep `yaml:"set_crossing,omitempty"`
	Suggest     *SuggestStep  `yaml:"suggest,omitempty"`

	Upload         string `yaml:"upload,omitempty"`
	UploadCommands string `yaml:"upload_commands,omitempty"`
	ClearFailures  bool   `yaml:"clear_failures,omitempty"`

	// Poll drives one controller poll cycle against the simulated track;
	// KillSignal makes a simulated signal stop responding to commands.
	Poll       bool `yaml:"poll,omitempty"`
	KillSignal *int `yaml:"kill_signal,omitempty"`
}

type SwitchStep struct {
	ID       int    `yaml:"id"`
	Position string `yaml:"position"`
}

type SignalStep struct {
	Block  int    `yaml:"block"`
	Aspect string `yaml:"aspect"`
}

type CrossingStep struct {
	ID     int    `yaml:"id"`
	Status string `yaml:"status"`
}

type SuggestStep struct {
	Block      int     `yaml:"block"`
	SpeedMPS   float64 `yaml:"speed_mps"`
	AuthorityM float64 `yaml:"authority_m"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if sc.Line == "" {
		return nil, fmt.Errorf("scenario %s: line is required", path)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	return &sc, nil
}
