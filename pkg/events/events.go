// Package events defines event types and structures for template lifecycle and ticketing notifications.
package events

import (
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every blueprint event; consumers filter on the event type metadata.
const Topic = "blueprint.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Template lifecycle events.
	WorkflowTemplateCreatedEvent EventType = "workflow_template.created"
	WorkflowTemplateUpdatedEvent EventType = "workflow_template.updated"
	WorkflowTemplateDeletedEvent EventType = "workflow_template.deleted"
	WorkflowTemplateClonedEvent  EventType = "workflow_template.cloned"
	TemplatesReorderedEvent      EventType = "template.reordered"

	// Ticketing events.
	TaskStatusChangedEvent         EventType = "ticket.task_status_changed"
	TicketGenerationRequestedEvent EventType = "ticket.generation_requested"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

type WorkflowTemplateCreated struct {
	BaseEvent

	WorkflowTemplateID string `json:"workflow_template_id"`
	Name               string `json:"name"`
	Imported           bool   `json:"imported,omitempty"`
}

func (e WorkflowTemplateCreated) GetType() EventType {
	return WorkflowTemplateCreatedEvent
}

type WorkflowTemplateUpdated struct {
	BaseEvent

	WorkflowTemplateID string `json:"workflow_template_id"`
	Active             bool   `json:"active"`
}

func (e WorkflowTemplateUpdated) GetType() EventType {
	return WorkflowTemplateUpdatedEvent
}

type WorkflowTemplateDeleted struct {
	BaseEvent

	WorkflowTemplateID string `json:"workflow_template_id"`
}

func (e WorkflowTemplateDeleted) GetType() EventType {
	return WorkflowTemplateDeletedEvent
}

type WorkflowTemplateCloned struct {
	BaseEvent

	SourceID        string `json:"source_id"`
	CloneID         string `json:"clone_id"`
	CloneMilestones bool   `json:"clone_milestones"`
	CloneTasks      bool   `json:"clone_tasks"`
}

func (e WorkflowTemplateCloned) GetType() EventType {
	return WorkflowTemplateClonedEvent
}

// TemplatesReordered reports a new sibling order under ParentID. Kind is "milestone" or "task".
type TemplatesReordered struct {
	BaseEvent

	Kind     string   `json:"kind"`
	ParentID string   `json:"parent_id"`
	Order    []string `json:"order"`
}

func (e TemplatesReordered) GetType() EventType {
	return TemplatesReorderedEvent
}

// TaskStatusChanged is published by the ticketing system whenever an instantiated task moves.
type TaskStatusChanged struct {
	BaseEvent

	TicketID            string            `json:"ticket_id"                       validate:"required"`
	TaskID              string            `json:"task_id"                         validate:"required"`
	MilestoneTemplateID string            `json:"milestone_template_id,omitempty"`
	From                models.TaskStatus `json:"from,omitempty"`
	To                  models.TaskStatus `json:"to"                              validate:"required"`
}

func (e TaskStatusChanged) GetType() EventType {
	return TaskStatusChangedEvent
}

func NewTaskStatusChanged(ticketID, taskID, milestoneID string, from, to models.TaskStatus) *TaskStatusChanged {
	return &TaskStatusChanged{
		BaseEvent:           NewBaseEvent(TaskStatusChangedEvent),
		TicketID:            ticketID,
		TaskID:              taskID,
		MilestoneTemplateID: milestoneID,
		From:                from,
		To:                  to,
	}
}

type TicketGenerationRequested struct {
	BaseEvent

	Request models.TicketGenerationRequest `json:"request"`
}

func (e TicketGenerationRequested) GetType() EventType {
	return TicketGenerationRequestedEvent
}

func NewTicketGenerationRequested(req models.TicketGenerationRequest) *TicketGenerationRequested {
	return &TicketGenerationRequested{
		BaseEvent: NewBaseEvent(TicketGenerationRequestedEvent),
		Request:   req,
	}
}
