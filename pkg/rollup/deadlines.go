package rollup

import (
	"time"

	"github.com/dukex/blueprint/pkg/models"
)

const day = 24 * time.Hour

// Deadline holds the instants derived from a milestone's SLA timing.
type Deadline struct {
	MilestoneID string    `json:"milestone_id"`
	StartAt     time.Time `json:"start_at"`
	DueAt       time.Time `json:"due_at"`
	WarnAt      time.Time `json:"warn_at"`
	EscalateAt  time.Time `json:"escalate_at"`
}

// Deadlines derives due, warning and escalation instants for a milestone started at
// start. The warning fires WarningDays before the due date but never before start.
// ok is false when the milestone has no SLA.
func Deadlines(start time.Time, milestone *models.MilestoneTemplate) (Deadline, bool) {
	if milestone.SLADays == nil {
		return Deadline{}, false
	}

	due := start.Add(time.Duration(*milestone.SLADays) * day)

	warn := due.Add(-time.Duration(milestone.WarningDays) * day)
	if warn.Before(start) {
		warn = start
	}

	return Deadline{
		MilestoneID: milestone.ID,
		StartAt:     start,
		DueAt:       due,
		WarnAt:      warn,
		EscalateAt:  due.Add(time.Duration(milestone.EscalationDays) * day),
	}, true
}

// Schedule lays milestones end to end in slice order starting at start. A milestone
// without an SLA uses its estimated duration, or zero days when neither is set.
func Schedule(start time.Time, milestones []*models.MilestoneTemplate) []Deadline {
	schedule := make([]Deadline, 0, len(milestones))
	cursor := start

	for _, milestone := range milestones {
		deadline, ok := Deadlines(cursor, milestone)
		if !ok {
			days := 0
			if milestone.EstimatedDurationDays != nil {
				days = *milestone.EstimatedDurationDays
			}

			due := cursor.Add(time.Duration(days) * day)
			deadline = Deadline{
				MilestoneID: milestone.ID,
				StartAt:     cursor,
				DueAt:       due,
				WarnAt:      due,
				EscalateAt:  due.Add(time.Duration(milestone.EscalationDays) * day),
			}
		}

		schedule = append(schedule, deadline)
		cursor = deadline.DueAt
	}

	return schedule
}
