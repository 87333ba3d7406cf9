package users

import "time"

// SetClock overrides the purge clock and returns a func restoring it.
func SetClock(clock func() time.Time) func() {
	prev := now
	now = clock

	return func() { now = prev }
}

// ScheduledAt exposes when a purge job becomes available.
func (args PurgeJobArgs) ScheduledAt() time.Time { return args.scheduledAt }
