package persistence

import (
	"fmt"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/google/uuid"
)

// NewID returns a time-ordered UUID string.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}

// PrepareTree readies a template tree for insertion: missing IDs are generated, parent
// references are set from the tree shape, ordinals follow slice order starting at 1,
// and timestamps are stamped with ts.
func PrepareTree(workflow *models.WorkflowTemplate, ts time.Time) error {
	var err error

	if workflow.ID == "" {
		workflow.ID, err = NewID()
		if err != nil {
			return err
		}
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = ts
	}

	workflow.UpdatedAt = ts

	for i, milestone := range workflow.Milestones {
		if milestone.ID == "" {
			milestone.ID, err = NewID()
			if err != nil {
				return err
			}
		}

		milestone.WorkflowTemplateID = workflow.ID
		milestone.Ordinal = i + 1
		milestone.CreatedAt = ts
		milestone.UpdatedAt = ts

		for j, task := range milestone.Tasks {
			if task.ID == "" {
				task.ID, err = NewID()
				if err != nil {
					return err
				}
			}

			if task.ChecklistTemplate == nil {
				task.ChecklistTemplate = []string{}
			}

			task.MilestoneTemplateID = milestone.ID
			task.Ordinal = j + 1
			task.CreatedAt = ts
			task.UpdatedAt = ts
		}
	}

	return nil
}
