package clock

import "time"

// Clock supplies the timestamps stamped onto dispatch records.
// Injected so tests can pin time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
// Params: none.
// Returns: current time in UTC.
type RealClock struct{}

// Now returns the current UTC instant.
// Params: none.
// Returns: wall-clock time normalized to UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock pinned to one instant.
// Params: the instant every Now call returns.
// Returns: deterministic clock for tests.
type Fixed time.Time

// Now returns the pinned instant.
// Params: none.
// Returns: the instant the clock was created with.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
