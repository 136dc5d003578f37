package fault

import "time"

// Clock is the time source for failure detection windows and actuator
// timeouts. The engine never reads the system clock directly; a Clock is
// injected at construction so tests can drive time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
