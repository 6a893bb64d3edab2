package models

import "time"

// TriggerStatus is the signaling outcome recorded for a (ticket, milestone) pair.
type TriggerStatus string

const (
	TriggerStatusSignaled TriggerStatus = "signaled"
	TriggerStatusFailed   TriggerStatus = "failed"
)

// TriggerRecord is the idempotency key for ticket generation: one per (ticket, milestone).
type TriggerRecord struct {
	TicketID            string        `json:"ticket_id"             db:"ticket_id"`
	MilestoneTemplateID string        `json:"milestone_template_id" db:"milestone_template_id"`
	Status              TriggerStatus `json:"status"                db:"status"`
	Attempts            int           `json:"attempts"              db:"attempts"`
	LastError           string        `json:"last_error,omitempty"  db:"last_error"`
	CreatedAt           time.Time     `json:"created_at"            db:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"            db:"updated_at"`
}
