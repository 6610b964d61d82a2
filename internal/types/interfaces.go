package types

import "time"

// Clock abstracts time for testability. Every scheduling decision in the
// engine is a pure function of entity state and a Clock reading; nothing
// below main reads the system clock directly.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock implements Clock with a constant instant. Test helper.
type FixedClock struct{ T time.Time }

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.T }
