// Package eventbus carries template lifecycle and ticketing events between components.
//
// Every event travels on one topic; the event type rides in message metadata so a
// subscriber can route without decoding the payload first.
package eventbus

import (
	"context"

	"github.com/dukex/blueprint/pkg/events"
)

// Event is anything that names its own type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. key groups related events, for example all events of
// one ticket, so partitioned transports keep them in order.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes incoming events to the handler registered for their type.
// Handlers must be registered before Subscribe starts consuming.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded payload, a pointer to the concrete event struct.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
