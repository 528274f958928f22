package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/robalyx/cotd/internal/database"
	"github.com/robalyx/cotd/internal/setup"
	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	ErrNameRequired         = errors.New("migration NAME argument required")
	ErrInvalidMigrationName = errors.New("migration name must be lower snake_case")
	ErrProductionRollback   = errors.New("refusing to roll back the schema in production without --force")
)

var migrationNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// schemaSession is what a migration command works with.
type schemaSession struct {
	migrator *migrate.Migrator
	envName  string
	logger   *zap.Logger
}

// migrateCommand builds the schema commands for the map and subscription tables.
func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the tracks, styles and subscriptions schema",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the bun migration bookkeeping tables",
				Action: withSchema(initSchema),
			},
			{
				Name:   "up",
				Usage:  "Apply pending schema migrations",
				Action: withSchema(applySchema),
			},
			{
				Name:  "rollback",
				Usage: "Undo the last applied migration group",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Allow a rollback in a production environment",
					},
				},
				Action: withSchema(rollbackSchema),
			},
			{
				Name:  "status",
				Usage: "List applied and pending schema migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "check",
						Usage: "Exit with an error when migrations are pending",
					},
				},
				Action: withSchema(schemaStatus),
			},
			{
				Name:      "create",
				Usage:     "Write a new Go migration into internal/database/migrations",
				ArgsUsage: "NAME",
				Action:    withSchema(createMigration),
			},
		},
	}
}

func initSchema(ctx context.Context, _ *cli.Command, s *schemaSession) error {
	if err := s.migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to create migration tables: %w", err)
	}

	s.logger.Info("Migration tables ready")
	return nil
}

func applySchema(ctx context.Context, _ *cli.Command, s *schemaSession) error {
	if err := s.migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to create migration tables: %w", err)
	}

	if err := s.migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer s.migrator.Unlock(ctx) //nolint:errcheck

	group, err := s.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if group.IsZero() {
		s.logger.Info("Schema is up to date")
		return nil
	}

	s.logger.Info("Applied schema migrations",
		zap.Int64("groupID", group.ID),
		zap.Strings("migrations", migrationNames(group.Migrations)))
	return nil
}

func rollbackSchema(ctx context.Context, c *cli.Command, s *schemaSession) error {
	if err := checkRollbackAllowed(s.envName, c.Bool("force")); err != nil {
		return err
	}

	if err := s.migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer s.migrator.Unlock(ctx) //nolint:errcheck

	group, err := s.migrator.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	if group.IsZero() {
		s.logger.Info("Nothing to roll back")
		return nil
	}

	s.logger.Warn("Rolled back schema migrations",
		zap.Int64("groupID", group.ID),
		zap.Strings("migrations", migrationNames(group.Migrations)),
		zap.String("env", s.envName))
	return nil
}

func schemaStatus(ctx context.Context, c *cli.Command, s *schemaSession) error {
	ms, err := s.migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	pending := migrationNames(ms.Unapplied())
	s.logger.Info("Schema migration status",
		zap.Strings("applied", migrationNames(ms.Applied())),
		zap.Strings("pending", pending),
		zap.Int64("lastGroupID", ms.LastGroupID()))

	if c.Bool("check") && len(pending) > 0 {
		return fmt.Errorf("%w: %v", setup.ErrPendingMigrations, pending)
	}

	return nil
}

func createMigration(ctx context.Context, c *cli.Command, s *schemaSession) error {
	if c.Args().Len() != 1 {
		return ErrNameRequired
	}

	name := c.Args().First()
	if err := validateMigrationName(name); err != nil {
		return err
	}

	mf, err := s.migrator.CreateGoMigration(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}

	s.logger.Info("Created schema migration", zap.String("name", mf.Name), zap.String("path", mf.Path))
	return nil
}

// validateMigrationName keeps generated file names consistent with the existing migrations.
func validateMigrationName(name string) error {
	if !migrationNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidMigrationName, name)
	}
	return nil
}

// checkRollbackAllowed guards the tracks and subscriptions tables in production.
func checkRollbackAllowed(envName string, force bool) error {
	if config.IsProductionEnv(envName) && !force {
		return fmt.Errorf("%w (env=%s)", ErrProductionRollback, envName)
	}
	return nil
}

func migrationNames(ms migrate.MigrationSlice) []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return names
}

type schemaAction func(ctx context.Context, c *cli.Command, s *schemaSession) error

// withSchema connects to the database for the duration of a migration command.
// Logs go to the CLI session directory like every other one-off command.
func withSchema(action schemaAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		cfg, _, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, dbLogger, err := telemetry.NewManager(telemetry.ServiceCLI, CLILogDir, &cfg.Common.Debug).GetLoggers()
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, dbLogger, false)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		return action(ctx, c, &schemaSession{
			migrator: db.Migrator(),
			envName:  cfg.Common.EnvName,
			logger:   logger.Named("migrate"),
		})
	}
}
