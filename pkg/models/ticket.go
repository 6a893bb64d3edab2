package models

import "time"

// TaskStatus is the lifecycle state of a task instantiated under a ticket.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// CanTransition reports whether a task may move from s to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() || s == next {
		return false
	}

	switch next {
	case TaskStatusInProgress:
		return s == TaskStatusPending
	case TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Ticket is the subset of a ticketing-system ticket this service reads.
type Ticket struct {
	ID        string `json:"id"`
	Number    string `json:"number,omitempty"`
	CompanyID string `json:"company_id"`
	ArticleID string `json:"article_id,omitempty"`
	KitID     string `json:"kit_id,omitempty"`
}

// SourceReference returns the kit when present, otherwise the article.
func (t *Ticket) SourceReference() string {
	if t.KitID != "" {
		return t.KitID
	}

	return t.ArticleID
}

// TicketTask is a task instantiated from a task template under a ticket.
type TicketTask struct {
	ID                  string     `json:"id"`
	TicketID            string     `json:"ticket_id,omitempty"`
	MilestoneTemplateID string     `json:"milestone_template_id"`
	Mandatory           bool       `json:"mandatory"`
	Status              TaskStatus `json:"status"`
}

// TicketGenerationRequest asks the ticketing system to create a dependent ticket.
type TicketGenerationRequest struct {
	SourceTicketID string    `json:"source_ticket_id"`
	MilestoneID    string    `json:"milestone_id"`
	CompanyID      string    `json:"company_id"`
	ArticleOrKitID string    `json:"article_or_kit_id"`
	Rationale      string    `json:"rationale"`
	RequestedAt    time.Time `json:"requested_at"`
}
