// Package schedule evaluates business-hours and date-window gates that
// decide whether a queue currently accepts releases.
package schedule

import "time"

// Clock is a test-injectable time source. Production code uses RealClock;
// tests use a FixedClock to pin "now" and exercise schedule boundaries
// deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (f FixedClock) Now() time.Time { return f.At }
