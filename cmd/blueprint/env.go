package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/dukex/blueprint/pkg/cmd"
	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/log"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// env holds the services one CLI invocation works with.
type env struct {
	logger      *slog.Logger
	out         io.Writer
	persistence persistence.Persistence
	ledger      persistence.TriggerRepository
	eventBus    eventbus.EventBus

	workflows *services.WorkflowTemplates
	tasks     *services.TaskTemplates
	cloning   *services.Cloning
}

func openEnv(ctx context.Context, command *cli.Command) (*env, error) {
	root := command.Root()
	logger := log.WithModule("cli")

	p, err := cmd.NewPersistence(ctx, logger, root.String("database-url"))
	if err != nil {
		return nil, err
	}

	bus, err := cmd.NewEventBus(root.String("event-bus"), root.StringSlice("kafka-brokers"), "blueprint-cli", logger)
	if err != nil {
		_ = p.Close(ctx)

		return nil, err
	}

	opts := []services.Option{services.WithLogger(logger), services.WithPublisher(bus)}

	return &env{
		logger:      logger,
		out:         root.Writer,
		persistence: p,
		eventBus:    bus,
		workflows:   services.NewWorkflowTemplates(p, opts...),
		tasks:       services.NewTaskTemplates(p, opts...),
		cloning:     services.NewCloning(p, opts...),
	}, nil
}

// completion builds the completion service, which needs the ticketing collaborator.
func (e *env) completion(ctx context.Context, command *cli.Command) (*services.Completion, error) {
	root := command.Root()

	client := cmd.NewTicketingClient(root.String("ticketing-url"), root.Duration("ticketing-timeout"), e.logger)
	if client == nil {
		return nil, cmd.ErrTicketingNotConfigured
	}

	sink, err := cmd.NewGenerationSink(root.String("generation-sink"), client, e.eventBus)
	if err != nil {
		return nil, err
	}

	opts := []services.Option{services.WithLogger(e.logger)}

	ledger, err := cmd.NewTriggerLedger(ctx, e.logger, root.String("trigger-ledger-url"))
	if err != nil {
		return nil, err
	}

	if ledger != nil {
		e.ledger = ledger
		opts = append(opts, services.WithTriggerLedger(ledger))
	}

	return services.NewCompletion(e.persistence, client, sink, opts...), nil
}

func (e *env) Close(ctx context.Context) error {
	var errs []error

	if closer, ok := e.ledger.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}

	errs = append(errs, e.eventBus.Close(), e.persistence.Close(ctx))

	return errors.Join(errs...)
}

func (e *env) print(v any) error {
	encoder := json.NewEncoder(e.out)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}

// withEnv opens the environment for one action and closes it afterwards.
func withEnv(action func(ctx context.Context, command *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) (err error) {
		e, err := openEnv(ctx, command)
		if err != nil {
			return err
		}

		defer func() {
			err = errors.Join(err, e.Close(ctx))
		}()

		return action(ctx, command, e)
	}
}
