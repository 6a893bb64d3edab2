// Package rollup derives milestone and workflow time budgets from their children.
//
// Every function here is pure: given the same input it returns the same output and
// never mutates its arguments, so callers may recompute as often as they like.
package rollup

import (
	"math"

	"github.com/dukex/blueprint/pkg/models"
)

// HoursPerDay is the working-day length used to convert task effort into SLA days.
const HoursPerDay = 8

// TaskDays converts estimated hours into whole SLA days, rounding up.
func TaskDays(hours int) int {
	if hours <= 0 {
		return 0
	}

	return int(math.Ceil(float64(hours) / HoursPerDay))
}

// SLADays sums TaskDays over the tasks that carry an estimate. The second result is
// false when tasks is empty, meaning the caller must keep the operator-supplied value.
func SLADays(tasks []*models.TaskTemplate) (int, bool) {
	if len(tasks) == 0 {
		return 0, false
	}

	total := 0

	for _, task := range tasks {
		if task == nil || task.EstimatedHours == nil {
			continue
		}

		total += TaskDays(*task.EstimatedHours)
	}

	return total, true
}

// WorkflowDurationDays sums the milestones' estimated durations; unset durations count
// as zero. The second result is false when milestones is empty.
func WorkflowDurationDays(milestones []*models.MilestoneTemplate) (int, bool) {
	if len(milestones) == 0 {
		return 0, false
	}

	total := 0

	for _, milestone := range milestones {
		if milestone == nil || milestone.EstimatedDurationDays == nil {
			continue
		}

		total += *milestone.EstimatedDurationDays
	}

	return total, true
}

// ApplyMilestone sets the milestone's effective SLA from tasks, falling back to the
// operator value when there are none. It reports whether anything changed.
func ApplyMilestone(milestone *models.MilestoneTemplate, tasks []*models.TaskTemplate) bool {
	before, beforeSource := milestone.SLADays, milestone.SLASource

	if days, ok := SLADays(tasks); ok {
		milestone.SLADays = models.IntPtr(days)
		milestone.SLASource = models.ValueSourceDerived
	} else {
		milestone.SLADays = copyInt(milestone.OperatorSLADays)
		milestone.SLASource = models.ValueSourceOperator
	}

	return beforeSource != milestone.SLASource || !equalInt(before, milestone.SLADays)
}

// ApplyWorkflow sets the workflow's effective duration from milestones, falling back to
// the operator value when there are none. It reports whether anything changed.
func ApplyWorkflow(workflow *models.WorkflowTemplate, milestones []*models.MilestoneTemplate) bool {
	before, beforeSource := workflow.EstimatedDurationDays, workflow.DurationSource

	if days, ok := WorkflowDurationDays(milestones); ok {
		workflow.EstimatedDurationDays = models.IntPtr(days)
		workflow.DurationSource = models.ValueSourceDerived
	} else {
		workflow.EstimatedDurationDays = copyInt(workflow.OperatorDurationDays)
		workflow.DurationSource = models.ValueSourceOperator
	}

	return beforeSource != workflow.DurationSource || !equalInt(before, workflow.EstimatedDurationDays)
}

// ApplyTree recomputes every derived value in a fully loaded template tree, bottom-up.
func ApplyTree(workflow *models.WorkflowTemplate) {
	for _, milestone := range workflow.Milestones {
		ApplyMilestone(milestone, milestone.Tasks)
	}

	ApplyWorkflow(workflow, workflow.Milestones)
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
