package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robalyx/cotd/internal/setup"
	"github.com/robalyx/cotd/internal/setup/telemetry"
	"github.com/urfave/cli/v3"
)

const (
	// BotLogDir specifies where log files of the long running service are stored.
	BotLogDir = "logs/bot_logs"
	// CLILogDir specifies where log files of one-off commands are stored.
	CLILogDir = "logs/cli_logs"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "cotd",
		Usage: "Cup of the Day notification bot",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Start the scheduler, API server and optional gateway",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "Apply pending database migrations on start",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runService(ctx, c.Bool("migrate"))
				},
			},
			{
				Name:  "refresh",
				Usage: "Fetch and store the current map once",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "suppress-notifications",
						Usage: "Store the map without notifying subscribers",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runRefresh(ctx, c.Bool("suppress-notifications"))
				},
			},
			{
				Name:   "notify",
				Usage:  "Notify subscribers about the stored current map",
				Action: runNotify,
			},
			migrateCommand(),
			{
				Name:  "commands",
				Usage: "Manage Discord slash commands",
				Commands: []*cli.Command{
					{
						Name:   "register",
						Usage:  "Replace the global slash commands",
						Action: registerCommands,
					},
				},
			},
			{
				Name:  "styles",
				Usage: "Manage the style table",
				Commands: []*cli.Command{
					{
						Name:   "sync",
						Usage:  "Write the style vocabulary into the database",
						Action: syncStyles,
					},
				},
			},
		},
	}

	return app.Run(ctx, os.Args)
}

// initCLI bootstraps the application for a one-off command.
func initCLI(ctx context.Context) (*setup.App, error) {
	return setup.InitializeApp(ctx, setup.Options{
		ServiceType: telemetry.ServiceCLI,
		LogDir:      CLILogDir,
	})
}
