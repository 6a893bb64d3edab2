// Package main provides the blueprint operator CLI.
package main

import (
	"context"
	"os"

	"github.com/dukex/blueprint/pkg/log"
	"github.com/dukex/blueprint/pkg/ticketing"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "blueprint",
		Usage:                 "Import, export, clone and reorder workflow templates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Template store URL (file://<dir> or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "trigger-ledger-url",
				Usage:   "Optional Redis URL for the ticket generation ledger",
				Sources: cli.EnvVars("TRIGGER_LEDGER_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers, comma separated",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "ticketing-url",
				Usage:   "Base URL of the ticketing system",
				Sources: cli.EnvVars("TICKETING_URL"),
			},
			&cli.DurationFlag{
				Name:    "ticketing-timeout",
				Usage:   "Timeout for ticketing requests",
				Value:   ticketing.DefaultTimeout,
				Sources: cli.EnvVars("TICKETING_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "generation-sink",
				Usage:   "Where ticket generation requests go (eventbus, http)",
				Value:   "http",
				Sources: cli.EnvVars("GENERATION_SINK"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			importCommand(),
			exportCommand(),
			listCommand(),
			cloneCommand(),
			reorderCommand(),
			moveTaskCommand(),
			completionCommand(),
		},
	}
}

func main() {
	logger := log.WithModule("cli")

	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	err = newRootCommand().Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
