package main

import (
	"context"
	"database/sql"

	root "usermgmt"
	"usermgmt/internal/config"
	"usermgmt/pkg/logger"

	"github.com/pressly/goose/v3"
	"github.com/riverqueue/river/riverdriver/riverdatabasesql"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateUsers applies the users schema with goose. A positive target stops
// at that version instead of the latest one.
func migrateUsers(ctx context.Context, db *sql.DB, target int64) {
	goose.SetBaseFS(root.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal(ctx, "could not set goose dialect to postgres", zap.Error(err))
	}

	var err error
	if target > 0 {
		err = goose.UpToContext(ctx, db, "migrations", target)
	} else {
		err = goose.UpContext(ctx, db, "migrations")
	}
	if err != nil {
		logger.Fatal(ctx, "could not migrate users schema", zap.Error(err))
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		logger.Fatal(ctx, "could not read users schema version", zap.Error(err))
	}
	logger.Info(ctx, "users schema is up to date", zap.Int64("version", version))
}

// migrateRiver brings the River job tables used by the purge worker to the
// latest version.
func migrateRiver(ctx context.Context, db *sql.DB) {
	migrator, err := rivermigrate.New(riverdatabasesql.New(db), nil)
	if err != nil {
		logger.Fatal(ctx, "could not create river queue migrator", zap.Error(err))
	}

	migrations := migrator.AllVersions()
	latestVersion := migrations[len(migrations)-1].Version
	currentVersion := 0
	currentMigrations, err := migrator.ExistingVersions(ctx)
	if err != nil {
		logger.Fatal(ctx, "could not get existing river queue migrations", zap.Error(err))
	}
	if len(currentMigrations) > 0 {
		currentVersion = currentMigrations[len(currentMigrations)-1].Version
	}
	if latestVersion <= currentVersion {
		logger.Info(ctx, "river queue schema is up to date", zap.Int("version", currentVersion))

		return
	}

	_, err = migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{
		TargetVersion: latestVersion,
	})
	if err != nil {
		logger.Fatal(ctx, "could not migrate river queue schema", zap.Error(err))
	}
	logger.Info(ctx, "river queue schema migrated",
		zap.Int("from", currentVersion), zap.Int("to", latestVersion))
}

// migrateCommand constructs the 'migrate' subcommand that applies the users
// schema with goose and the River queue schema with rivermigrate.
func migrateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates database to the latest version",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			if cfg.Storage.Driver == config.StorageDriverMemory {
				logger.Info(ctx, "memory storage driver selected, nothing to migrate")

				return
			}

			target, _ := cmd.Flags().GetInt64("target")
			skipRiver, _ := cmd.Flags().GetBool("skip-river")

			strg, closeStrg := getPostgres(ctx, cfg)
			defer closeStrg()

			db, ok := strg.DB.(*sql.DB)
			if !ok {
				logger.Fatal(ctx, "postgres storage is not backed by *sql.DB")
			}

			migrateUsers(ctx, db, target)
			if !skipRiver {
				migrateRiver(ctx, db)
			}
		},
	}

	cmd.Flags().Int64("target", 0, "Users schema version to migrate to (0 means latest)")
	cmd.Flags().Bool("skip-river", false, "Do not migrate the River queue tables")

	return cmd
}
