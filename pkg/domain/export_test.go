package domain

import "time"

// SetClock overrides the aggregate clock and returns a func restoring it.
func SetClock(clock func() time.Time) func() {
	prev := now
	now = clock

	return func() { now = prev }
}
