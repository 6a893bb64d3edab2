package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/blueprint/pkg/events"
)

// decoders maps each event type to a constructor for its payload struct.
var decoders = map[events.EventType]func() any{
	events.WorkflowTemplateCreatedEvent:   func() any { return &events.WorkflowTemplateCreated{} },
	events.WorkflowTemplateUpdatedEvent:   func() any { return &events.WorkflowTemplateUpdated{} },
	events.WorkflowTemplateDeletedEvent:   func() any { return &events.WorkflowTemplateDeleted{} },
	events.WorkflowTemplateClonedEvent:    func() any { return &events.WorkflowTemplateCloned{} },
	events.TemplatesReorderedEvent:        func() any { return &events.TemplatesReordered{} },
	events.TaskStatusChangedEvent:         func() any { return &events.TaskStatusChanged{} },
	events.TicketGenerationRequestedEvent: func() any { return &events.TicketGenerationRequested{} },
}

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "eventbus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	decode, known := decoders[eventType]
	if !known {
		eb.logger.WarnContext(ctx, "Dropping event of unknown type", "event_type", eventType)
		msg.Nack()

		return
	}

	event := decode()

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Failed to decode event", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	err = handler(ctx, event)
	if err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
