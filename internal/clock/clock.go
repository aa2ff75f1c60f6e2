// Package clock provides an injectable time source so tests can control
// "now" without sleeping or mocking package-level functions.
package clock

import "time"

// Clock returns the current time. The default implementation wraps time.Now;
// tests substitute a Fixed clock for deterministic assertions.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

// Now returns the current wall-clock time in UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock that always returns the same instant. Useful in tests
// that assert on exact timestamps or elapsed durations.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }
