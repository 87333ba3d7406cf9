// Package worker runs the background jobs of the service on River.
package worker

import (
	"context"
	"fmt"

	"usermgmt/internal/config"
	"usermgmt/internal/users"
	"usermgmt/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// Options configure the River client.
type Options struct {
	// MaxWorkers is the number of jobs processed concurrently on the default queue.
	MaxWorkers int
}

// NewOptions constructs an Options value from the provided application config.
func NewOptions(cfg *config.Config) Options {
	return Options{MaxWorkers: cfg.Worker.MaxWorkers}
}

// NewWorkers registers every worker of the service.
func NewWorkers(svc users.Service) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewPurgeUserWorker(svc))

	return workers
}

// Start creates a River client over dbPool and starts processing jobs. The
// caller stops it with Client.Stop.
func Start(ctx context.Context, dbPool *pgxpool.Pool, svc users.Service, opts Options) (*river.Client[pgx.Tx], error) {
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	riverClient, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: NewWorkers(svc),
		Logger:  logger.Slog(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create river queue client: %w", err)
	}

	if err := riverClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("could not start river queue client: %w", err)
	}

	return riverClient, nil
}
