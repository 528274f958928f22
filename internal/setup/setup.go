package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/disgoorg/disgo/rest"
	"github.com/redis/rueidis"
	"github.com/robalyx/cotd/internal/bot"
	"github.com/robalyx/cotd/internal/database"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/robalyx/cotd/internal/settings"
	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/setup/telemetry"
	"github.com/robalyx/cotd/internal/style"
	"github.com/robalyx/cotd/internal/subscription"
	"github.com/robalyx/cotd/internal/upstream"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/robalyx/cotd/internal/worker/notify"
	"github.com/robalyx/cotd/internal/worker/refresh"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and migrations were not requested.
var ErrPendingMigrations = errors.New("database migrations are pending, run `cotd migrate up` or start with --migrate")

// Options controls how the application is bootstrapped.
type Options struct {
	ServiceType telemetry.ServiceType
	LogDir      string
	// AutoMigrate applies pending migrations instead of refusing to start.
	AutoMigrate bool
}

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config        *config.Config        // Application configuration
	Logger        *zap.Logger           // Main application logger
	DBLogger      *zap.Logger           // Database-specific logger
	DB            database.Client       // Database connection pool
	RedisManager  *redis.Manager        // Redis connection manager, nil when Redis is not configured
	LogManager    *telemetry.Manager    // Log management system
	Vocabulary    *style.Vocabulary     // Style code to name mapping
	Settings      *settings.Store       // Runtime bot settings
	Subscriptions *subscription.Service // Subscribe and unsubscribe commands
	Monitor       *core.Monitor         // Job status reporting
	Lock          *redis.JobLock        // Per-job run lock
	Upstream      *upstream.Client      // Rotation and tagging client
	Discord       rest.Rest             // Discord REST API
	Notify        *notify.Job           // Notification fan-out job
	Refresh       *refresh.Job          // Map refresh job
	restClient    rest.Client
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, opts Options) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// Load app configuration
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(opts.ServiceType, opts.LogDir, &cfg.Common.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("path", configDir), zap.String("env", cfg.Common.EnvName))

	vocab, err := style.LoadVocabulary(cfg.Worker.StylesFile)
	if err != nil {
		return nil, err
	}

	// Redis is optional, locks and job statuses fall back to process memory
	var (
		redisManager *redis.Manager
		lockClient   rueidis.Client
		statusClient rueidis.Client
	)

	if cfg.Common.Redis.URL != "" || cfg.Common.Redis.Host != "" {
		redisManager = redis.NewManager(&cfg.Common.Redis, logger)

		if lockClient, err = redisManager.GetClient(redis.LockDBIndex); err != nil {
			redisManager.Close()
			return nil, err
		}

		if statusClient, err = redisManager.GetClient(redis.StatusDBIndex); err != nil {
			redisManager.Close()
			return nil, err
		}
	} else {
		logger.Warn("Redis is not configured, job locks only cover this process")
	}

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger, opts.AutoMigrate)
	if err != nil {
		if redisManager != nil {
			redisManager.Close()
		}

		return nil, err
	}

	settingsStore := settings.NewStore(
		db.Model().Setting(), cfg.Worker.Notifications.EnabledDefault, logger,
	)
	monitor := core.NewMonitor(statusClient, logManager.GetInstanceID(), logger)
	lock := redis.NewJobLock(lockClient, time.Duration(cfg.Worker.Schedule.LockTTL)*time.Second, logger)

	upstreamClient := upstream.NewClient(upstream.Options{
		Upstream:       &cfg.Worker.Upstream,
		EnvName:        cfg.Common.EnvName,
		CircuitBreaker: cfg.Common.CircuitBreaker,
		Retry:          cfg.Common.Retry,
	}, vocab, logger)

	restClient := rest.NewClient(cfg.Bot.Discord.Token)
	discordRest := rest.New(restClient)

	dispatcher := bot.NewDispatcher(discordRest, time.Duration(cfg.Bot.Discord.RequestTimeout)*time.Millisecond)

	notifyJob := notify.New(
		db.Model().Track(),
		db.Model().Subscription(),
		dispatcher,
		lock,
		monitor,
		cfg.Worker.Notifications.Concurrency,
		logManager.GetWorkerLogger(notify.JobName),
	)

	refreshJob := refresh.New(
		upstreamClient,
		db.Model().Track(),
		settingsStore,
		notifyJob,
		lock,
		monitor,
		logManager.GetWorkerLogger(refresh.JobName),
	)

	// Bundle all initialized components
	return &App{
		Config:        cfg,
		Logger:        logger,
		DBLogger:      dbLogger.Named("database"),
		DB:            db,
		RedisManager:  redisManager,
		LogManager:    logManager,
		Vocabulary:    vocab,
		Settings:      settingsStore,
		Subscriptions: subscription.NewService(db.Model().Subscription(), vocab, logger),
		Monitor:       monitor,
		Lock:          lock,
		Upstream:      upstreamClient,
		Discord:       discordRest,
		Notify:        notifyJob,
		Refresh:       refreshJob,
		restClient:    restClient,
	}, nil
}

// SyncStyles writes the vocabulary into the styles table.
func (s *App) SyncStyles(ctx context.Context) (int, error) {
	styles := s.Vocabulary.Styles()

	rows := make([]*types.Style, len(styles))
	for i, st := range styles {
		rows[i] = &types.Style{ID: st.ID, Name: st.Name}
	}

	count, err := s.DB.Model().Style().SyncStyles(ctx, rows)
	if err != nil {
		return 0, err
	}

	s.Logger.Info("Synced styles", zap.Int("count", count))

	return count, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	s.restClient.Close(ctx)

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections last as other components might need it during cleanup
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}
}

// checkAndRunMigrations connects to the database and applies or rejects pending migrations.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger, autoMigrate bool,
) (database.Client, error) {
	if autoMigrate {
		return database.NewConnection(ctx, cfg, dbLogger, true)
	}

	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := db.Migrator()
	if err := migrator.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if unapplied := ms.Unapplied(); len(unapplied) > 0 {
		db.Close()
		return nil, fmt.Errorf("%w: %s", ErrPendingMigrations, unapplied.String())
	}

	return db, nil
}
