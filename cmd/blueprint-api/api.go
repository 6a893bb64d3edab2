// Package main provides the Blueprint API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/metrics"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

// Collaborators are the optional dependencies of the API. Completion routes and the
// task status observer are only enabled when both Tickets and Sink are set.
type Collaborators struct {
	Tickets services.TicketSource
	Sink    services.GenerationSink
	Ledger  persistence.TriggerRepository
	Tracer  trace.Tracer
	Metrics *metrics.Recorder
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	metrics     *metrics.Recorder
	validate    *validator.Validate

	workflows  *services.WorkflowTemplates
	milestones *services.MilestoneTemplates
	tasks      *services.TaskTemplates
	cloning    *services.Cloning
	completion *services.Completion
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	collaborators Collaborators,
) *API {
	recorder := collaborators.Metrics
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithMetrics(recorder),
	}

	if eventBus != nil {
		opts = append(opts, services.WithPublisher(eventBus))
	}

	if collaborators.Tracer != nil {
		opts = append(opts, services.WithTracer(collaborators.Tracer))
	}

	api := &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		metrics:     recorder,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		workflows:   services.NewWorkflowTemplates(persistence, opts...),
		milestones:  services.NewMilestoneTemplates(persistence, opts...),
		tasks:       services.NewTaskTemplates(persistence, opts...),
		cloning:     services.NewCloning(persistence, opts...),
	}

	if collaborators.Tickets != nil && collaborators.Sink != nil {
		if collaborators.Ledger != nil {
			opts = append(opts, services.WithTriggerLedger(collaborators.Ledger))
		}

		api.completion = services.NewCompletion(persistence, collaborators.Tickets, collaborators.Sink, opts...)
	}

	return api
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflows, a.milestones, a.tasks, a.cloning, a.completion, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Blueprint API")
	})

	handlers.Routes(app)

	return app
}

// RegisterObserver subscribes completion evaluation to TaskStatusChanged events. It is a
// no-op without an event bus or a ticketing collaborator.
func (a *API) RegisterObserver(ctx context.Context) error {
	if a.eventBus == nil || a.completion == nil {
		a.logger.InfoContext(ctx, "Task status observer disabled")

		return nil
	}

	err := a.completion.RegisterObserver(a.eventBus)
	if err != nil {
		return err
	}

	return a.eventBus.Subscribe(ctx)
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
