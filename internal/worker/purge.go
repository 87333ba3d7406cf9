package worker

import (
	"context"
	"errors"
	"fmt"

	"usermgmt/internal/users"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/serrors"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

// PurgeUserWorker is a River worker that deletes deactivated users once their
// retention period is over.
//
// Jobs are scheduled for the due time computed at deactivation, but the user
// may have been reactivated and deactivated again since then. The worker
// therefore asks users.Service.Purge, which re-checks the user, and snoozes the
// job for the remaining wait when the user is not due yet.
type PurgeUserWorker struct {
	river.WorkerDefaults[users.PurgeJobArgs]

	users users.Service
}

func NewPurgeUserWorker(users users.Service) *PurgeUserWorker {
	return &PurgeUserWorker{users: users}
}

// Work runs a single purge job and maps the outcome to River actions: invalid
// arguments cancel the job, a pending wait snoozes it and other errors are
// returned so River retries.
func (p *PurgeUserWorker) Work(ctx context.Context, job *river.Job[users.PurgeJobArgs]) error {
	ctx = logger.WithFields(ctx, zap.Int64("jobID", job.ID), zap.String("userID", job.Args.UserID))

	wait, err := p.users.Purge(ctx, job.Args.UserID)
	if err != nil {
		if errors.Is(err, serrors.ErrInvalidArgument) {
			return river.JobCancel(err) //nolint: wrapcheck
		}

		logger.Error(ctx, "error purging user", zap.Error(err))

		return fmt.Errorf("could not purge user: %w", err)
	}

	if wait > 0 {
		logger.Debug(ctx, "user is not due for purging yet", zap.Duration("wait", wait))

		return river.JobSnooze(wait) //nolint: wrapcheck
	}

	logger.Info(ctx, "purge job finished")

	return nil
}
