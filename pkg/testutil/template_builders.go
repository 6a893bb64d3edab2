// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/dukex/blueprint/pkg/models"
)

// CreateTestWorkflowTemplate creates an active WorkflowTemplate with default values that can be overridden.
func CreateTestWorkflowTemplate(overrides ...func(*models.WorkflowTemplate)) *models.WorkflowTemplate {
	workflow := &models.WorkflowTemplate{
		Name:           "Onboarding",
		Description:    "Standard customer onboarding",
		Code:           "ONBOARDING",
		Active:         true,
		DurationSource: models.ValueSourceOperator,
		Milestones:     []*models.MilestoneTemplate{},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithMilestones appends milestones in the given order.
func WithMilestones(milestones ...*models.MilestoneTemplate) func(*models.WorkflowTemplate) {
	return func(w *models.WorkflowTemplate) {
		w.Milestones = append(w.Milestones, milestones...)
	}
}

// WithWorkflowName sets the template name.
func WithWorkflowName(name string) func(*models.WorkflowTemplate) {
	return func(w *models.WorkflowTemplate) {
		w.Name = name
	}
}

// WithOperatorDuration sets the operator-supplied duration.
func WithOperatorDuration(days int) func(*models.WorkflowTemplate) {
	return func(w *models.WorkflowTemplate) {
		w.OperatorDurationDays = models.IntPtr(days)
	}
}

// CreateTestMilestoneTemplate creates a standard MilestoneTemplate with default offsets.
func CreateTestMilestoneTemplate(name string, overrides ...func(*models.MilestoneTemplate)) *models.MilestoneTemplate {
	milestone := &models.MilestoneTemplate{
		Name:           name,
		WarningDays:    models.DefaultWarningDays,
		EscalationDays: models.DefaultEscalationDays,
		MilestoneType:  models.MilestoneTypeStandard,
		SLASource:      models.ValueSourceOperator,
		Tasks:          []*models.TaskTemplate{},
	}

	for _, override := range overrides {
		override(milestone)
	}

	return milestone
}

// WithTasks appends tasks in the given order.
func WithTasks(tasks ...*models.TaskTemplate) func(*models.MilestoneTemplate) {
	return func(m *models.MilestoneTemplate) {
		m.Tasks = append(m.Tasks, tasks...)
	}
}

// WithHoursTasks appends one mandatory task per estimate, named "<milestone> task N".
func WithHoursTasks(hours ...int) func(*models.MilestoneTemplate) {
	return func(m *models.MilestoneTemplate) {
		for i, h := range hours {
			m.Tasks = append(m.Tasks, CreateTestTaskTemplate(fmt.Sprintf("%s task %d", m.Name, i+1), WithHours(h)))
		}
	}
}

// WithAutoGenerate enables ticket generation on completion.
func WithAutoGenerate() func(*models.MilestoneTemplate) {
	return func(m *models.MilestoneTemplate) {
		m.AutoGenerateTickets = true
	}
}

// WithDuration sets the milestone's estimated duration.
func WithDuration(days int) func(*models.MilestoneTemplate) {
	return func(m *models.MilestoneTemplate) {
		m.EstimatedDurationDays = models.IntPtr(days)
	}
}

// WithOperatorSLA sets the operator-supplied SLA.
func WithOperatorSLA(days int) func(*models.MilestoneTemplate) {
	return func(m *models.MilestoneTemplate) {
		m.OperatorSLADays = models.IntPtr(days)
	}
}

// CreateTestTaskTemplate creates a mandatory standard TaskTemplate.
func CreateTestTaskTemplate(name string, overrides ...func(*models.TaskTemplate)) *models.TaskTemplate {
	task := &models.TaskTemplate{
		Name:              name,
		Mandatory:         true,
		TaskType:          models.TaskTypeStandard,
		ChecklistTemplate: []string{},
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithHours sets the task's estimated hours.
func WithHours(hours int) func(*models.TaskTemplate) {
	return func(t *models.TaskTemplate) {
		t.EstimatedHours = models.IntPtr(hours)
	}
}

// WithChecklist sets the task's checklist lines.
func WithChecklist(lines ...string) func(*models.TaskTemplate) {
	return func(t *models.TaskTemplate) {
		t.ChecklistTemplate = lines
	}
}

// Optional marks the task as not mandatory.
func Optional() func(*models.TaskTemplate) {
	return func(t *models.TaskTemplate) {
		t.Mandatory = false
	}
}

// CreateTestTicketTasks instantiates one ticket task per status under milestoneID.
func CreateTestTicketTasks(ticketID, milestoneID string, statuses ...models.TaskStatus) []*models.TicketTask {
	tasks := make([]*models.TicketTask, len(statuses))
	for i, status := range statuses {
		tasks[i] = &models.TicketTask{
			ID:                  fmt.Sprintf("%s-%s-%d", ticketID, milestoneID, i+1),
			TicketID:            ticketID,
			MilestoneTemplateID: milestoneID,
			Mandatory:           true,
			Status:              status,
		}
	}

	return tasks
}
