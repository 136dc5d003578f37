package plc

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/trackworks/wayside/internal/track"
)

// Rule files let operators reconfigure interlocking logic without rebuilding
// the controller. A file declares a program struct:
//
//	program: {
//		name: "crossing-guard"
//		rules: [
//			{
//				when: {anyOccupied: [17, 18, 19, 20, 21]}
//				then: {crossing: {"1": "Active"}}
//			},
//			{
//				when: {allVacant: [17, 18, 19, 20, 21]}
//				then: {crossing: {"1": "Inactive"}}
//			},
//		]
//	}
//
// The CUE source is compiled into the fixed Rule/Condition/Effect structures
// below. Nothing in a rule file is executable: conditions read occupancy,
// effects propose state, and that is the whole language.

// Condition gates a rule. Set fields are ANDed; at least one must be set.
type Condition struct {
	// AnyOccupied fires when at least one listed block is occupied.
	AnyOccupied []track.BlockID
	// AllVacant fires when every listed block is vacant.
	AllVacant []track.BlockID
	// Always fires unconditionally.
	Always bool
}

func (c Condition) matches(s Snapshot) bool {
	if len(c.AnyOccupied) > 0 {
		hit := false
		for _, b := range c.AnyOccupied {
			if s.Occupancy[b] {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, b := range c.AllVacant {
		if s.Occupancy[b] {
			return false
		}
	}
	return true
}

// Rule pairs a condition with the actions to propose when it matches.
type Rule struct {
	When Condition
	Then Actions
}

// RuleProgram is a compiled rule file. Rules evaluate in file order; for the
// same target, later matching rules win.
type RuleProgram struct {
	name  string
	rules []Rule
}

func (p *RuleProgram) Name() string { return p.name }

// Rules returns the compiled rules. Exposed for validation tooling.
func (p *RuleProgram) Rules() []Rule { return p.rules }

func (p *RuleProgram) Evaluate(s Snapshot) Actions {
	out := NewActions()
	for _, r := range p.rules {
		if r.When.matches(s) {
			out.merge(r.Then)
		}
	}
	return out
}

// CompileError is a rule compilation failure with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileRulesSource compiles CUE source text into a rule program. The source
// must declare a top-level "program" struct.
func CompileRulesSource(filename, src string) (*RuleProgram, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileRules(v.LookupPath(cue.ParsePath("program")))
}

// CompileRules parses a CUE program struct into a RuleProgram.
func CompileRules(v cue.Value) (*RuleProgram, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.Exists() {
		return nil, &CompileError{Field: "program", Message: "program struct is required"}
	}

	p := &RuleProgram{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.name = name

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, &CompileError{Field: "rules", Message: "rules list is required", Pos: v.Pos()}
	}
	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := parseRule(iter.Value())
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, rule)
	}
	if len(p.rules) == 0 {
		return nil, &CompileError{Field: "rules", Message: "at least one rule is required", Pos: v.Pos()}
	}
	return p, nil
}

func parseRule(v cue.Value) (Rule, error) {
	var rule Rule

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return rule, &CompileError{Field: "when", Message: "rule condition is required", Pos: v.Pos()}
	}
	cond, err := parseCondition(whenVal)
	if err != nil {
		return rule, err
	}
	rule.When = cond

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return rule, &CompileError{Field: "then", Message: "rule effects are required", Pos: v.Pos()}
	}
	effects, err := parseEffects(thenVal)
	if err != nil {
		return rule, err
	}
	if effects.Empty() {
		return rule, &CompileError{Field: "then", Message: "rule proposes nothing", Pos: thenVal.Pos()}
	}
	rule.Then = effects
	return rule, nil
}

func parseCondition(v cue.Value) (Condition, error) {
	var cond Condition

	if anyVal := v.LookupPath(cue.ParsePath("anyOccupied")); anyVal.Exists() {
		blocks, err := parseBlockList(anyVal, "anyOccupied")
		if err != nil {
			return cond, err
		}
		cond.AnyOccupied = blocks
	}
	if vacVal := v.LookupPath(cue.ParsePath("allVacant")); vacVal.Exists() {
		blocks, err := parseBlockList(vacVal, "allVacant")
		if err != nil {
			return cond, err
		}
		cond.AllVacant = blocks
	}
	if alwaysVal := v.LookupPath(cue.ParsePath("always")); alwaysVal.Exists() {
		always, err := alwaysVal.Bool()
		if err != nil {
			return cond, formatCUEError(err)
		}
		cond.Always = always
	}

	if len(cond.AnyOccupied) == 0 && len(cond.AllVacant) == 0 && !cond.Always {
		return cond, &CompileError{Field: "when",
			Message: "condition needs anyOccupied, allVacant, or always", Pos: v.Pos()}
	}
	return cond, nil
}

func parseBlockList(v cue.Value, field string) ([]track.BlockID, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var blocks []track.BlockID
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n <= 0 {
			return nil, &CompileError{Field: field,
				Message: fmt.Sprintf("block ids are positive, got %d", n), Pos: iter.Value().Pos()}
		}
		blocks = append(blocks, track.BlockID(n))
	}
	if len(blocks) == 0 {
		return nil, &CompileError{Field: field, Message: "block list is empty", Pos: v.Pos()}
	}
	return blocks, nil
}

func parseEffects(v cue.Value) (Actions, error) {
	out := NewActions()

	if sv := v.LookupPath(cue.ParsePath("switch")); sv.Exists() {
		err := eachIDField(sv, "switch", func(id int, val cue.Value) error {
			s, err := val.String()
			if err != nil {
				return formatCUEError(err)
			}
			pos, err := track.ParseSwitchPosition(s)
			if err != nil {
				return &CompileError{Field: "switch", Message: err.Error(), Pos: val.Pos()}
			}
			out.Switches[track.SwitchID(id)] = pos
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	if sv := v.LookupPath(cue.ParsePath("signal")); sv.Exists() {
		err := eachIDField(sv, "signal", func(id int, val cue.Value) error {
			s, err := val.String()
			if err != nil {
				return formatCUEError(err)
			}
			a, err := track.ParseAspect(strings.ToUpper(s))
			if err != nil {
				return &CompileError{Field: "signal", Message: err.Error(), Pos: val.Pos()}
			}
			out.Signals[track.BlockID(id)] = a
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	if cv := v.LookupPath(cue.ParsePath("crossing")); cv.Exists() {
		err := eachIDField(cv, "crossing", func(id int, val cue.Value) error {
			s, err := val.String()
			if err != nil {
				return formatCUEError(err)
			}
			g, err := track.ParseGateStatus(s)
			if err != nil {
				return &CompileError{Field: "crossing", Message: err.Error(), Pos: val.Pos()}
			}
			out.Crossings[track.CrossingID(id)] = g
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	if sv := v.LookupPath(cue.ParsePath("speed")); sv.Exists() {
		err := eachIDField(sv, "speed", func(id int, val cue.Value) error {
			n, err := val.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			if n < 0 {
				return &CompileError{Field: "speed", Message: "speed must be non-negative", Pos: val.Pos()}
			}
			out.Speeds[track.BlockID(id)] = int(n)
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	if av := v.LookupPath(cue.ParsePath("authority")); av.Exists() {
		err := eachIDField(av, "authority", func(id int, val cue.Value) error {
			n, err := val.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			if n < 0 {
				return &CompileError{Field: "authority", Message: "authority must be non-negative", Pos: val.Pos()}
			}
			out.Authorities[track.BlockID(id)] = int(n)
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	if sv := v.LookupPath(cue.ParsePath("stop")); sv.Exists() {
		err := eachIDField(sv, "stop", func(id int, val cue.Value) error {
			b, err := val.Bool()
			if err != nil {
				return formatCUEError(err)
			}
			out.Stop[track.BlockID(id)] = b
			return nil
		})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// eachIDField iterates a struct whose labels are numeric ids.
func eachIDField(v cue.Value, field string, fn func(id int, val cue.Value) error) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		id, err := strconv.Atoi(iter.Label())
		if err != nil {
			return &CompileError{Field: field,
				Message: fmt.Sprintf("label %q is not a numeric id", iter.Label()), Pos: iter.Value().Pos()}
		}
		if err := fn(id, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
