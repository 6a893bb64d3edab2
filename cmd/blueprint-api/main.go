package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/blueprint/pkg/cmd"
	"github.com/dukex/blueprint/pkg/log"
	"github.com/dukex/blueprint/pkg/metrics"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/ticketing"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "blueprint-api"
)

func main() {
	logger := log.WithModule("api")

	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Manage workflow templates and evaluate milestone completion",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
				Usage:   "Base URL of the ticketing system; completion routes are disabled without it",
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
				Value:   "eventbus",
				Sources: cli.EnvVars("GENERATION_SINK"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Blueprint API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			collaborators := Collaborators{Metrics: metrics.NewRecorder()}

			if command.Bool("otel-enabled") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					err := shutdown(context.Background())
					if err != nil {
						logger.Error("Failed to shut down tracer provider", "error", err)
					}
				}()

				collaborators.Tracer = tracer
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			collaborators.Ledger, err = cmd.NewTriggerLedger(ctx, logger, command.String("trigger-ledger-url"))
			if err != nil {
				return err
			}

			if closer, ok := collaborators.Ledger.(io.Closer); ok {
				defer func() {
					err := closer.Close()
					if err != nil {
						logger.Error("Failed to close trigger ledger", "error", err)
					}
				}()
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), serviceName, logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			client := cmd.NewTicketingClient(command.String("ticketing-url"), command.Duration("ticketing-timeout"), logger)
			if client != nil {
				collaborators.Tickets = client

				collaborators.Sink, err = cmd.NewGenerationSink(command.String("generation-sink"), client, eventBus)
				if err != nil {
					return err
				}
			}

			api := NewAPI(logger, persistence, eventBus, collaborators)

			err = api.RegisterObserver(ctx)
			if err != nil {
				return fmt.Errorf("failed to register task status observer: %w", err)
			}

			return api.Start(ctx, command.Int("port"))
		},
	}

	err = command.Run(context.Background(), os.Args)
	if err != nil {
		logger.Error("Blueprint API stopped", "error", err)
		os.Exit(1)
	}
}
