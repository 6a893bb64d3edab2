package services

import (
	"context"
	"log/slog"

	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/metrics"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

type options struct {
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	metrics   *metrics.Recorder
	logger    *slog.Logger
	ledger    persistence.TriggerRepository
}

// Option configures the optional collaborators of a service.
type Option func(*options)

// WithPublisher publishes lifecycle events after successful mutations.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *options) { o.metrics = recorder }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTriggerLedger stores trigger records outside the template store.
func WithTriggerLedger(ledger persistence.TriggerRepository) Option {
	return func(o *options) { o.ledger = ledger }
}

func newOptions(module string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.tracer == nil {
		o.tracer = otelhelper.NoopTracer()
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	o.logger = o.logger.With("module", module)

	return o
}

// publish emits event when a publisher is configured. Events describe committed state,
// so a publish failure is logged and does not fail the operation.
func (o options) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(ctx, key, event)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}
