package users

import (
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// PurgeJobArgs contains the arguments for the job that deletes a deactivated
// user once its retention period is over.
type PurgeJobArgs struct {
	// UserID is the user to purge. It is marked as unique so River keeps a
	// single pending purge per user.
	UserID string `json:"userId" river:"unique"`

	// maxAttempts configures the maximum number of times River should retry the job.
	maxAttempts int
	// scheduledAt is when the user becomes eligible for purging.
	scheduledAt time.Time
}

// Kind returns the River job kind used to register and dispatch the purge worker.
func (args PurgeJobArgs) Kind() string { return "PurgeUserJob" }

// InsertOpts schedules the job at the end of the retention period. A user that
// is deactivated again while a purge is still waiting does not get a second job.
func (args PurgeJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: args.maxAttempts,
		ScheduledAt: args.scheduledAt,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRunning,
				rivertype.JobStateRetryable,
				rivertype.JobStateScheduled,
			},
		},
	}
}
