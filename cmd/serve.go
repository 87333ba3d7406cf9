package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"usermgmt/internal/api"
	"usermgmt/internal/api/handler/v1handler"
	"usermgmt/internal/config"
	"usermgmt/internal/users"
	"usermgmt/internal/worker"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/storage/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func setupServer(ctx context.Context, cfg *config.Config, svc users.Service, pgsql *postgres.PgSQL) func(ctx context.Context) {
	deps := api.Deps{Deps: v1handler.Deps{Users: svc}}
	if pgsql != nil {
		deps.Pinger = pgsql
	}

	server, err := api.NewServer(deps, api.NewOptions(cfg))
	if err != nil {
		logger.Fatal(ctx, "could not create webserver", zap.Error(err))
	}

	go func() {
		logger.Info(ctx, "starting webserver...", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "could not start webserver", zap.Error(err))
			}
		}
	}()

	return func(ctx context.Context) {
		logger.Info(ctx, "stopping webserver...")
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(ctx, "could not stop webserver", zap.Error(err))
		}
	}
}

// setupWorker starts the purge worker. Without postgres there is no queue to
// consume, so nothing is started.
func setupWorker(ctx context.Context, cfg *config.Config, svc users.Service, pgsql *postgres.PgSQL) func(ctx context.Context) {
	if pgsql == nil {
		return func(context.Context) {}
	}

	riverClient, err := worker.Start(ctx, pgsql.Pool, svc, worker.NewOptions(cfg))
	if err != nil {
		logger.Fatal(ctx, "could not start workers", zap.Error(err))
	}
	logger.Info(ctx, "workers started", zap.Int("maxWorkers", cfg.Worker.MaxWorkers))

	return func(ctx context.Context) {
		logger.Info(ctx, "stopping workers...")
		if err := riverClient.Stop(ctx); err != nil {
			logger.Error(ctx, "could not stop workers", zap.Error(err))
		}
	}
}

func serveCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts API server and background workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			strg, pgsql, closeStrg := getStorage(ctx, cfg)
			defer closeStrg()

			usersOpts := users.NewOptions(cfg)
			if usersOpts.PurgeAfter == 0 && cfg.Users.PurgeAfter > 0 {
				logger.Warn(ctx, "purging deactivated users is disabled for this storage driver",
					zap.String("driver", cfg.Storage.Driver), zap.Duration("purgeAfter", cfg.Users.PurgeAfter))
			}
			svc := users.New(strg, usersOpts)

			stopWorker := setupWorker(context.WithoutCancel(ctx), cfg, svc, pgsql)
			stopWebserver := setupServer(ctx, cfg, svc, pgsql)

			// wait for interrupt
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()

			stopWebserver(shutdownCtx)
			stopWorker(shutdownCtx)
		},
	}

	return cmd
}
