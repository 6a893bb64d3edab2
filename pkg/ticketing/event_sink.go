package ticketing

import (
	"context"

	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/models"
)

// EventSink forwards generation requests as TicketGenerationRequested events, keyed by
// the source ticket so one ticket's requests stay on one partition.
type EventSink struct {
	publisher eventbus.EventPublisher
}

func NewEventSink(publisher eventbus.EventPublisher) *EventSink {
	return &EventSink{publisher: publisher}
}

func (s *EventSink) RequestTicketGeneration(ctx context.Context, req models.TicketGenerationRequest) error {
	return s.publisher.Publish(ctx, req.SourceTicketID, events.NewTicketGenerationRequested(req))
}
