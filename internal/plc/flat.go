package plc

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/trackworks/wayside/internal/track"
)

// Flat text program format: one command per line, space-separated tokens.
//
//	SWITCH <id> <Normal|Alternate>
//	CROSSING <id> <Active|Inactive>
//	SIGNAL <id> <Red|Yellow|Green|SuperGreen>
//	CMD_SPEED <id> <mph>
//	CMD_AUTH <id> <yards>
//
// Blank lines and lines starting with # are ignored. Unknown commands are
// logged and skipped so a file written for a larger territory still loads.
// Malformed arguments to a known command abort the parse.

// ParseError is a flat-program parse failure with its source line.
type ParseError struct {
	Program string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Program, e.Line, e.Message)
}

// FlatProgram is a parsed flat text command list. Evaluation ignores the
// snapshot and always proposes the same state; for the same target, later
// lines override earlier ones.
type FlatProgram struct {
	name    string
	actions Actions
}

// titleCaser normalizes operator-typed value tokens ("normal", "ACTIVE") to
// the canonical spellings the track parsers accept.
var titleCaser = cases.Title(language.English)

// ParseFlat reads a flat text program. Unknown commands are reported through
// log and skipped.
func ParseFlat(name string, r io.Reader, log *slog.Logger) (*FlatProgram, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &FlatProgram{name: name, actions: NewActions()}

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := p.parseCommand(fields, lineNo, log); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Program: name, Line: lineNo, Message: err.Error()}
	}
	return p, nil
}

func (p *FlatProgram) parseCommand(fields []string, line int, log *slog.Logger) error {
	keyword := strings.ToUpper(fields[0])

	switch keyword {
	case "SWITCH", "CROSSING", "SIGNAL", "CMD_SPEED", "CMD_AUTH":
	default:
		log.Warn("skipping unknown PLC command", "program", p.name, "line", line, "command", fields[0])
		return nil
	}
	if len(fields) != 3 {
		return &ParseError{Program: p.name, Line: line,
			Message: fmt.Sprintf("%s expects 2 arguments, got %d", keyword, len(fields)-1)}
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return &ParseError{Program: p.name, Line: line,
			Message: fmt.Sprintf("invalid id %q", fields[1])}
	}

	switch keyword {
	case "SWITCH":
		pos, err := track.ParseSwitchPosition(titleCaser.String(strings.ToLower(fields[2])))
		if err != nil {
			return &ParseError{Program: p.name, Line: line, Message: err.Error()}
		}
		p.actions.Switches[track.SwitchID(id)] = pos
	case "CROSSING":
		g, err := track.ParseGateStatus(titleCaser.String(strings.ToLower(fields[2])))
		if err != nil {
			return &ParseError{Program: p.name, Line: line, Message: err.Error()}
		}
		p.actions.Crossings[track.CrossingID(id)] = g
	case "SIGNAL":
		a, err := track.ParseAspect(strings.ToUpper(fields[2]))
		if err != nil {
			return &ParseError{Program: p.name, Line: line, Message: err.Error()}
		}
		p.actions.Signals[track.BlockID(id)] = a
	case "CMD_SPEED":
		mph, err := strconv.Atoi(fields[2])
		if err != nil || mph < 0 {
			return &ParseError{Program: p.name, Line: line,
				Message: fmt.Sprintf("invalid speed %q", fields[2])}
		}
		p.actions.Speeds[track.BlockID(id)] = mph
	case "CMD_AUTH":
		yd, err := strconv.Atoi(fields[2])
		if err != nil || yd < 0 {
			return &ParseError{Program: p.name, Line: line,
				Message: fmt.Sprintf("invalid authority %q", fields[2])}
		}
		p.actions.Authorities[track.BlockID(id)] = yd
	}
	return nil
}

func (p *FlatProgram) Name() string { return p.name }

// Evaluate returns the parsed command list as actions. The snapshot is
// ignored; flat programs are one-shot.
func (p *FlatProgram) Evaluate(Snapshot) Actions {
	out := NewActions()
	out.merge(p.actions)
	return out
}
