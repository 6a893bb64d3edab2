package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/blueprint/pkg/eventbus"
	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/otelhelper"
	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/ticketing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	triggerSignaled   = "signaled"
	triggerFailed     = "failed"
	triggerDuplicate  = "duplicate"
	triggerResignaled = "resignaled"
)

// TicketSource reads ticket state from the ticketing system.
type TicketSource interface {
	GetTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	TasksForTicket(ctx context.Context, ticketID string) ([]*models.TicketTask, error)
}

// GenerationSink receives dependent-ticket generation requests.
type GenerationSink interface {
	RequestTicketGeneration(ctx context.Context, req models.TicketGenerationRequest) error
}

// TaskCounts tallies tasks of one class. Cancelled tasks are counted separately and are
// not part of Total.
type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// MilestoneCompletion is the completion state of one milestone under a ticket.
type MilestoneCompletion struct {
	MilestoneTemplateID string                `json:"milestone_template_id"`
	WorkflowTemplateID  string                `json:"workflow_template_id"`
	Name                string                `json:"name"`
	Ordinal             int                   `json:"ordinal"`
	AutoGenerateTickets bool                  `json:"auto_generate_tickets"`
	Mandatory           TaskCounts            `json:"mandatory"`
	Optional            TaskCounts            `json:"optional"`
	Cancelled           int                   `json:"cancelled"`
	Complete            bool                  `json:"complete"`
	Trigger             *models.TriggerRecord `json:"trigger,omitempty"`
}

// CompletionReport is the per-milestone completion state of a ticket.
type CompletionReport struct {
	TicketID             string                 `json:"ticket_id"`
	Milestones           []*MilestoneCompletion `json:"milestones"`
	Unknown              []*models.TicketTask   `json:"unknown"`
	AllMandatoryComplete bool                   `json:"all_mandatory_complete"`
}

// EvaluationResult lists the milestones signaled by one evaluation.
type EvaluationResult struct {
	Report *CompletionReport `json:"report"`
	Fired  []string          `json:"fired"`
	Failed []string          `json:"failed"`
}

// Completion decides when a milestone's tasks under a ticket are complete and signals
// dependent-ticket generation exactly once per (ticket, milestone).
type Completion struct {
	persistence persistence.Persistence
	tickets     TicketSource
	sink        GenerationSink
	options
}

// NewCompletion creates the completion trigger. Trigger records go to the template
// store's ledger unless WithTriggerLedger is given.
func NewCompletion(p persistence.Persistence, tickets TicketSource, sink GenerationSink, opts ...Option) *Completion {
	o := newOptions("completion", opts)
	if o.ledger == nil {
		o.ledger = p.TriggerRepository()
	}

	return &Completion{
		persistence: p,
		tickets:     tickets,
		sink:        sink,
		options:     o,
	}
}

// ValidateTransition rejects task status changes outside the task state machine.
func (c *Completion) ValidateTransition(from, to models.TaskStatus) error {
	if from.CanTransition(to) {
		return nil
	}

	return NewValidationError("ValidateTransition", "INVALID_TRANSITION",
		fmt.Sprintf("task cannot move from '%s' to '%s'", from, to), ErrInvalidTransition)
}

// Status reports the completion state of every milestone the ticket has tasks for.
// Tasks pointing at a milestone that does not exist are listed under Unknown.
func (c *Completion) Status(ctx context.Context, ticketID string) (*CompletionReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "completion.Status",
		attribute.String(otelhelper.TicketIDKey, ticketID))
	defer span.End()

	report, _, err := c.status(ctx, ticketID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return report, nil
}

func (c *Completion) status(ctx context.Context, ticketID string) (*CompletionReport, *models.Ticket, error) {
	ticket, err := c.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, ticketingError("Status", err)
	}

	tasks, err := c.tickets.TasksForTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, ticketingError("Status", err)
	}

	records, err := c.ledger.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, storeError("Status", err)
	}

	recorded := make(map[string]*models.TriggerRecord, len(records))
	for _, record := range records {
		recorded[record.MilestoneTemplateID] = record
	}

	report := &CompletionReport{
		TicketID:   ticketID,
		Milestones: []*MilestoneCompletion{},
		Unknown:    []*models.TicketTask{},
	}
	byMilestone := map[string]*MilestoneCompletion{}

	for _, task := range tasks {
		entry, known := byMilestone[task.MilestoneTemplateID]
		if !known {
			entry, err = c.milestoneEntry(ctx, task.MilestoneTemplateID)
			if err != nil {
				return nil, nil, err
			}

			byMilestone[task.MilestoneTemplateID] = entry

			if entry != nil {
				entry.Trigger = recorded[entry.MilestoneTemplateID]
				report.Milestones = append(report.Milestones, entry)
			}
		}

		if entry == nil {
			report.Unknown = append(report.Unknown, task)

			continue
		}

		tally(entry, task)
	}

	hasMandatory, allComplete := false, true

	for _, entry := range report.Milestones {
		entry.Complete = entry.Mandatory.Total > 0 && entry.Mandatory.Completed == entry.Mandatory.Total

		if entry.Mandatory.Total > 0 {
			hasMandatory = true
			allComplete = allComplete && entry.Complete
		}
	}

	report.AllMandatoryComplete = hasMandatory && allComplete

	slices.SortFunc(report.Milestones, func(a, b *MilestoneCompletion) int {
		return cmp.Or(cmp.Compare(a.WorkflowTemplateID, b.WorkflowTemplateID), cmp.Compare(a.Ordinal, b.Ordinal))
	})

	return report, ticket, nil
}

// milestoneEntry returns nil when the milestone does not exist.
func (c *Completion) milestoneEntry(ctx context.Context, milestoneID string) (*MilestoneCompletion, error) {
	if milestoneID == "" {
		return nil, nil
	}

	milestone, err := c.persistence.MilestoneTemplateRepository().GetByID(ctx, milestoneID)
	if persistence.IsNotFound(err) {
		return nil, nil
	}

	if err != nil {
		return nil, storeError("Status", err)
	}

	return &MilestoneCompletion{
		MilestoneTemplateID: milestone.ID,
		WorkflowTemplateID:  milestone.WorkflowTemplateID,
		Name:                milestone.Name,
		Ordinal:             milestone.Ordinal,
		AutoGenerateTickets: milestone.AutoGenerateTickets,
	}, nil
}

func tally(entry *MilestoneCompletion, task *models.TicketTask) {
	if task.Status == models.TaskStatusCancelled {
		entry.Cancelled++

		return
	}

	counts := &entry.Optional
	if task.Mandatory {
		counts = &entry.Mandatory
	}

	counts.Total++

	if task.Status == models.TaskStatusCompleted {
		counts.Completed++
	}
}

// Evaluate signals generation for every complete milestone with AutoGenerateTickets that
// has no trigger record yet. The record is written before the signal, so concurrent or
// repeated evaluations signal at most once. A failed signal leaves a failed record and is
// only retried through Resignal.
func (c *Completion) Evaluate(ctx context.Context, ticketID string) (*EvaluationResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "completion.Evaluate",
		attribute.String(otelhelper.TicketIDKey, ticketID))
	defer span.End()

	report, ticket, err := c.status(ctx, ticketID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result := &EvaluationResult{Report: report, Fired: []string{}, Failed: []string{}}

	var failures []error

	for _, entry := range report.Milestones {
		if !entry.Complete || !entry.AutoGenerateTickets || entry.Trigger != nil {
			continue
		}

		record, fired, err := c.fire(ctx, ticket, entry)
		if record != nil {
			entry.Trigger = record
		}

		switch {
		case err != nil:
			result.Failed = append(result.Failed, entry.MilestoneTemplateID)
			failures = append(failures, err)
		case fired:
			result.Fired = append(result.Fired, entry.MilestoneTemplateID)
		}
	}

	if len(failures) > 0 {
		err = newUpstreamError("Evaluate", errors.Join(failures...))
		otelhelper.SetError(span, err)

		return result, err
	}

	return result, nil
}

// fire claims the (ticket, milestone) key and signals. fired is false when another
// evaluation already holds the key.
func (c *Completion) fire(ctx context.Context, ticket *models.Ticket, entry *MilestoneCompletion) (*models.TriggerRecord, bool, error) {
	ts := time.Now().UTC()
	record := &models.TriggerRecord{
		TicketID:            ticket.ID,
		MilestoneTemplateID: entry.MilestoneTemplateID,
		Status:              models.TriggerStatusSignaled,
		Attempts:            1,
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}

	err := c.ledger.Record(ctx, record)
	if persistence.IsTriggerAlreadyRecorded(err) {
		c.metrics.Trigger(triggerDuplicate)
		c.logger.DebugContext(ctx, "Trigger already recorded",
			"ticket_id", ticket.ID, "milestone_template_id", entry.MilestoneTemplateID)

		existing, getErr := c.ledger.Get(ctx, ticket.ID, entry.MilestoneTemplateID)
		if getErr != nil {
			return nil, false, storeError("Evaluate", getErr)
		}

		return existing, false, nil
	}

	if err != nil {
		return nil, false, storeError("Evaluate", err)
	}

	err = c.signal(ctx, ticket, entry.MilestoneTemplateID, entry.Name)
	if err != nil {
		c.markFailed(ctx, record, err)
		c.metrics.Trigger(triggerFailed)

		return record, false, err
	}

	c.metrics.Trigger(triggerSignaled)
	c.logger.InfoContext(ctx, "Ticket generation requested",
		"ticket_id", ticket.ID, "milestone_template_id", entry.MilestoneTemplateID)

	return record, true, nil
}

// Resignal re-sends the generation request of a failed trigger. A trigger that was
// already signaled is a conflict; a missing one is not found.
func (c *Completion) Resignal(ctx context.Context, ticketID, milestoneID string) (*models.TriggerRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "completion.Resignal",
		attribute.String(otelhelper.TicketIDKey, ticketID),
		attribute.String(otelhelper.MilestoneTemplateIDKey, milestoneID))
	defer span.End()

	record, err := c.ledger.Get(ctx, ticketID, milestoneID)
	if err != nil {
		return nil, storeError("Resignal", err)
	}

	if record.Status == models.TriggerStatusSignaled {
		return nil, newConflictError("Resignal", "ticket generation was already signaled for this milestone", nil)
	}

	ticket, err := c.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, ticketingError("Resignal", err)
	}

	milestone, err := c.persistence.MilestoneTemplateRepository().GetByID(ctx, milestoneID)
	if err != nil {
		return nil, storeError("Resignal", err)
	}

	record.Attempts++

	err = c.signal(ctx, ticket, milestoneID, milestone.Name)
	if err != nil {
		otelhelper.SetError(span, err)
		c.markFailed(ctx, record, err)
		c.metrics.Trigger(triggerFailed)

		return record, newUpstreamError("Resignal", err)
	}

	record.Status = models.TriggerStatusSignaled
	record.LastError = ""
	record.UpdatedAt = time.Now().UTC()

	err = c.ledger.Update(ctx, record)
	if err != nil {
		return nil, storeError("Resignal", err)
	}

	c.metrics.Trigger(triggerResignaled)
	c.logger.InfoContext(ctx, "Ticket generation re-signaled",
		"ticket_id", ticketID, "milestone_template_id", milestoneID, "attempts", record.Attempts)

	return record, nil
}

func (c *Completion) signal(ctx context.Context, ticket *models.Ticket, milestoneID, milestoneName string) error {
	ref := ticket.Number
	if ref == "" {
		ref = ticket.ID
	}

	return c.sink.RequestTicketGeneration(ctx, models.TicketGenerationRequest{
		SourceTicketID: ticket.ID,
		MilestoneID:    milestoneID,
		CompanyID:      ticket.CompanyID,
		ArticleOrKitID: ticket.SourceReference(),
		Rationale:      fmt.Sprintf("All mandatory tasks of milestone %q are completed on ticket %s", milestoneName, ref),
		RequestedAt:    time.Now().UTC(),
	})
}

func (c *Completion) markFailed(ctx context.Context, record *models.TriggerRecord, cause error) {
	record.Status = models.TriggerStatusFailed
	record.LastError = cause.Error()
	record.UpdatedAt = time.Now().UTC()

	err := c.ledger.Update(ctx, record)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to mark trigger as failed",
			"ticket_id", record.TicketID, "milestone_template_id", record.MilestoneTemplateID, "error", err)
	}

	c.logger.WarnContext(ctx, "Ticket generation signal failed",
		"ticket_id", record.TicketID, "milestone_template_id", record.MilestoneTemplateID, "error", cause)
}

// HandleTaskStatusChanged is the observer entry point: it checks the transition and
// evaluates completion when a task reached a terminal state.
func (c *Completion) HandleTaskStatusChanged(ctx context.Context, event *events.TaskStatusChanged) (*EvaluationResult, error) {
	err := validateStruct("HandleTaskStatusChanged", event)
	if err != nil {
		return nil, err
	}

	if event.From != "" {
		err = c.ValidateTransition(event.From, event.To)
		if err != nil {
			return nil, err
		}
	} else if !event.To.Valid() {
		return nil, NewValidationError("HandleTaskStatusChanged", "INVALID_STATUS",
			fmt.Sprintf("unknown task status '%s'", event.To), ErrInvalidTransition)
	}

	if !event.To.Terminal() {
		return &EvaluationResult{Fired: []string{}, Failed: []string{}}, nil
	}

	return c.Evaluate(ctx, event.TicketID)
}

// RegisterObserver evaluates completion for every TaskStatusChanged event on the bus.
// Invalid events are logged and acknowledged; store and ticketing failures are returned
// so the transport redelivers them.
func (c *Completion) RegisterObserver(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.TaskStatusChangedEvent, func(ctx context.Context, event any) error {
		changed, ok := event.(*events.TaskStatusChanged)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		result, err := c.HandleTaskStatusChanged(ctx, changed)

		switch {
		case IsValidationError(err) || IsNotFoundError(err):
			c.logger.WarnContext(ctx, "Ignoring task status event", "ticket_id", changed.TicketID, "error", err)

			return nil
		case result != nil && len(result.Failed) > 0:
			// The failed records stay in the ledger for Resignal; redelivery would not resend.
			return nil
		default:
			return err
		}
	})
}

func ticketingError(op string, err error) error {
	if errors.Is(err, ticketing.ErrTicketNotFound) {
		return newNotFoundError(op, err)
	}

	return newUpstreamError(op, err)
}
