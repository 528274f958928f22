package main

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/bot"
	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/worker/refresh"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// runRefresh runs the refresh job once and waits for it to finish.
func runRefresh(ctx context.Context, suppress bool) error {
	app, err := initCLI(ctx)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	result := app.Refresh.Run(ctx, suppress)

	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("outcome", string(result.Outcome)),
	}
	if result.Track != nil {
		fields = append(fields, zap.String("uid", result.Track.UID), zap.String("name", result.Track.Name))
	}
	if result.Notify != nil {
		fields = append(fields, zap.Int("sent", result.Notify.Sent), zap.Int("failed", len(result.Notify.Failed)))
	}

	app.Logger.Info("Refresh finished", fields...)

	// The map not being available yet is not a failure of the command
	if result.Outcome == refresh.OutcomeSkipped {
		return nil
	}

	return result.Err
}

// runNotify notifies subscribers about the stored current map.
func runNotify(ctx context.Context, _ *cli.Command) error {
	app, err := initCLI(ctx)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	summary, err := app.Notify.Run(ctx, nil)
	if err != nil {
		return err
	}

	app.Logger.Info("Notify finished",
		zap.String("run_id", summary.RunID),
		zap.Int("matched", summary.Matched),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", len(summary.Failed)))

	return nil
}

// syncStyles writes the style vocabulary into the database.
func syncStyles(ctx context.Context, _ *cli.Command) error {
	app, err := initCLI(ctx)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	_, err = app.SyncStyles(ctx)

	return err
}

// registerCommands replaces the global slash commands. Only the config is needed.
func registerCommands(ctx context.Context, _ *cli.Command) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Bot.Discord.AppID == 0 {
		return fmt.Errorf("%w: %s is required", config.ErrInvalidConfig, config.EnvDiscordAppID)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	client := rest.NewClient(cfg.Bot.Discord.Token)
	defer client.Close(ctx)

	if err := bot.RegisterCommands(ctx, rest.NewApplications(client), snowflake.ID(cfg.Bot.Discord.AppID)); err != nil {
		return err
	}

	logger.Info("Registered slash commands", zap.Int("count", len(bot.Commands())))

	return nil
}
