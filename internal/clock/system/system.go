// Package system supplies the UTC wall clock. Rental contracts carry no
// modification date and are stamped with it; run durations are measured
// against it.
package system

import "time"

// Clock is the production pipeline.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC at microsecond precision, the
// resolution the document table stores.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Since reports the wall-clock time elapsed since start.
func (Clock) Since(start time.Time) time.Duration {
	return time.Since(start)
}
