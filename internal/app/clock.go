package app

import "time"

// Clock returns the current instant. Deadlines are computed and checked against it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
