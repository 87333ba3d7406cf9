// Package main provides the CLI entrypoint for the user management service.
// It wires subcommands (serve, migrate, jwt), loads configuration, and initializes logging.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"usermgmt/internal/config"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/metrics"
	"usermgmt/pkg/storage"
	"usermgmt/pkg/storage/instrumented"
	"usermgmt/pkg/storage/memory"
	"usermgmt/pkg/storage/postgres"
	"usermgmt/pkg/storage/rediscache"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// getPostgres creates a PostgreSQL client using configuration values and returns it
// along with a cleanup function to close the connection pool.
func getPostgres(ctx context.Context, cfg *config.Config) (*postgres.PgSQL, func()) {
	pgsql, err := postgres.New(ctx, postgres.Options{
		Username:           cfg.Database.Username,
		Password:           cfg.Database.Password,
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		Database:           cfg.Database.DatabaseName,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.Database.ConnMaxIdleTime,
		MaxOpenConnections: cfg.Database.MaxOpenConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		SslMode:            cfg.Database.SslMode,
	})
	if err != nil {
		logger.Fatal(ctx, "could not create postgres storage", zap.Error(err))
	}

	return pgsql, func() {
		logger.Info(ctx, "closing postgres client...")
		if err = pgsql.Close(); err != nil {
			logger.Warn(ctx, "could not close postgres connection", zap.Error(err))
		}
	}
}

// getStorage builds the storage stack selected by the config: the backend,
// wrapped with OpenTelemetry instrumentation and, when enabled, the Redis
// cache. pgsql is nil for the memory driver.
func getStorage(ctx context.Context, cfg *config.Config) (strg storage.Storage, pgsql *postgres.PgSQL, cleanup func()) {
	var (
		base    storage.Storage
		backend string
	)
	cleanups := make([]func(), 0, 2)

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")
		base, backend = memory.New(), "memory"
	default:
		var closePg func()
		pgsql, closePg = getPostgres(ctx, cfg)
		cleanups = append(cleanups, closePg)
		base, backend = pgsql, "postgresql"
	}

	mp, err := metrics.NewMeterProvider(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(ctx, "could not create meter provider", zap.Error(err))
	}
	strg, err = instrumented.New(base, instrumented.Options{MeterProvider: mp, Backend: backend})
	if err != nil {
		logger.Fatal(ctx, "could not instrument storage", zap.Error(err))
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx, "redis is not reachable, lookups fall back to storage", zap.Error(err))
		}
		strg = rediscache.New(strg, client, rediscache.Options{TTL: cfg.Redis.TTL})
		cleanups = append(cleanups, func() {
			logger.Info(ctx, "closing redis client...")
			if err := client.Close(); err != nil {
				logger.Warn(ctx, "could not close redis client", zap.Error(err))
			}
		})
	}

	return strg, pgsql, func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}

// main sets up the root Cobra command, loads configuration and logging, and
// registers subcommands before executing the CLI.
func main() {
	rootCmd := &cobra.Command{
		Use: "usermgmt",
	}

	// there is no way to access flags before command execution in cobra.
	// configPath here is parsed using the standard flags package.
	// following line is just added to prevent errors when Cobra is parsing the flags.
	rootCmd.PersistentFlags().StringP("config", "c", "config.yml", "Config File Path")

	configPath := flag.String("c", "config.yml", "The config file path")
	flag.Parse()

	// a local .env file is optional, real environment variables win
	_ = godotenv.Load()

	log.Println("loading config ...")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("could not load config file", err)
	}

	logger.Setup(cfg.Environment)

	ctx := context.Background()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			logger.Sync(ctx)

			panic(p)
		}
	}()

	rootCmd.AddCommand(
		migrateCommand(cfg),
		serveCommand(cfg),
		JWTCommand(cfg),
	)

	err = rootCmd.Execute()
	logger.Sync(ctx)
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}
