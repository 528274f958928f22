package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/bot"
	"github.com/robalyx/cotd/internal/rest"
	"github.com/robalyx/cotd/internal/setup"
	"github.com/robalyx/cotd/internal/setup/telemetry"
	"github.com/robalyx/cotd/internal/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// runService runs the scheduler, the API server and the gateway until ctx is cancelled.
func runService(ctx context.Context, autoMigrate bool) error {
	app, err := setup.InitializeApp(ctx, setup.Options{
		ServiceType: telemetry.ServiceBot,
		LogDir:      BotLogDir,
		AutoMigrate: autoMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		app.Cleanup(cleanupCtx)
	}()

	logger := app.Logger
	cfg := app.Config

	if _, err := app.SyncStyles(ctx); err != nil {
		return err
	}

	scheduler, err := worker.NewScheduler(app.Refresh, &cfg.Worker.Schedule, app.LogManager.GetWorkerLogger("scheduler"))
	if err != nil {
		return err
	}

	handler := bot.NewHandler(app.Subscriptions, logger)

	if cfg.Bot.Discord.AppID != 0 {
		if err := bot.RegisterCommands(ctx, app.Discord, snowflake.ID(cfg.Bot.Discord.AppID)); err != nil {
			logger.Warn("Failed to register slash commands", zap.Error(err))
		}
	}

	server, err := rest.NewServer(rest.Dependencies{
		Settings:      app.Settings,
		Tracks:        app.DB.Model().Track(),
		Subscriptions: app.DB.Model().Subscription(),
		Trigger:       scheduler,
		Statuses:      app.Monitor,
		Interactions:  handler,
	}, cfg.Common.EnvName, &cfg.Bot.API, &cfg.Bot.Discord, logger)
	if err != nil {
		return err
	}

	port := cfg.Bot.API.Port
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Bot.API.Host, port),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var gateway *bot.Gateway
	if cfg.Bot.Discord.EnableGateway {
		if gateway, err = bot.NewGateway(cfg.Bot.Discord.Token, handler, logger); err != nil {
			return err
		}

		if err := gateway.Open(ctx); err != nil {
			return fmt.Errorf("failed to open gateway: %w", err)
		}
	}

	scheduler.Start()
	logger.Info("Scheduler started", zap.Time("next_refresh", scheduler.NextRefresh()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("API server listening", zap.String("addr", httpServer.Addr))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop API server: %w", err))
		}

		if gateway != nil {
			gateway.Close(shutdownCtx)
		}

		if err := scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}

		return errors.Join(errs...)
	})

	return g.Wait()
}
