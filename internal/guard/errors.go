package guard

import (
	"errors"
	"fmt"

	"github.com/trackworks/wayside/internal/track"
)

// PermissionError reports an operation that requires maintenance mode while
// the controller is not in maintenance mode. It is surfaced to the caller and
// never retried.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s requires maintenance mode", e.Op)
}

// SafetyViolation reports a requested state change that would violate an
// interlocking invariant. The requested change is not applied.
type SafetyViolation struct {
	Op     string
	Block  track.BlockID
	Reason string
}

func (e *SafetyViolation) Error() string {
	if e.Block != 0 {
		return fmt.Sprintf("%s: %s (block %d)", e.Op, e.Reason, e.Block)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsPermission reports whether err is a PermissionError.
// Uses errors.As to handle wrapped errors.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsSafetyViolation reports whether err is a SafetyViolation.
// Uses errors.As to handle wrapped errors.
func IsSafetyViolation(err error) bool {
	var sv *SafetyViolation
	return errors.As(err, &sv)
}
