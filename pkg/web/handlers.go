// Package web provides HTTP handlers and REST API endpoints for template management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/blueprint/pkg/models"
	"github.com/dukex/blueprint/pkg/rollup"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/templatefile"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflows  *services.WorkflowTemplates
	milestones *services.MilestoneTemplates
	tasks      *services.TaskTemplates
	cloning    *services.Cloning
	completion *services.Completion
	validator  *validator.Validate
}

// NewAPIHandlers wires the template services. completion may be nil when no ticketing
// collaborator is configured; the ticket routes then answer 503.
func NewAPIHandlers(
	workflows *services.WorkflowTemplates,
	milestones *services.MilestoneTemplates,
	tasks *services.TaskTemplates,
	cloning *services.Cloning,
	completion *services.Completion,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:  workflows,
		milestones: milestones,
		tasks:      tasks,
		cloning:    cloning,
		completion: completion,
		validator:  validator,
	}
}

// Routes mounts every template, ticket and webhook route on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	w := router.Group("/workflow-templates")
	w.Get("/", h.GetWorkflowTemplates)
	w.Post("/", h.CreateWorkflowTemplate)
	w.Post("/import", h.ImportWorkflowTemplate)
	w.Get("/:id", h.GetWorkflowTemplate)
	w.Patch("/:id", h.UpdateWorkflowTemplate)
	w.Delete("/:id", h.DeleteWorkflowTemplate)
	w.Post("/:id/deactivate", h.DeactivateWorkflowTemplate)
	w.Post("/:id/clone", h.CloneWorkflowTemplate)
	w.Get("/:id/schedule", h.GetSchedule)
	w.Get("/:id/export", h.ExportWorkflowTemplate)
	w.Get("/:id/milestones", h.GetMilestoneTemplates)
	w.Post("/:id/milestones", h.CreateMilestoneTemplate)
	w.Put("/:id/milestones/order", h.ReorderMilestoneTemplates)

	m := router.Group("/milestone-templates")
	m.Get("/:id", h.GetMilestoneTemplate)
	m.Patch("/:id", h.UpdateMilestoneTemplate)
	m.Delete("/:id", h.DeleteMilestoneTemplate)
	m.Post("/:id/move", h.MoveMilestoneTemplate)
	m.Get("/:id/tasks", h.GetTaskTemplates)
	m.Post("/:id/tasks", h.CreateTaskTemplate)
	m.Put("/:id/tasks/order", h.ReorderTaskTemplates)

	t := router.Group("/task-templates")
	t.Get("/:id", h.GetTaskTemplate)
	t.Patch("/:id", h.UpdateTaskTemplate)
	t.Delete("/:id", h.DeleteTaskTemplate)
	t.Post("/:id/move", h.MoveTaskTemplate)

	tickets := router.Group("/tickets/:ticketId")
	tickets.Get("/completion", h.GetCompletion)
	tickets.Post("/completion/evaluate", h.EvaluateCompletion)
	tickets.Post("/milestones/:milestoneId/resignal", h.Resignal)

	router.Post("/webhooks/task-status", h.TaskStatusWebhook)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Blueprint API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Blueprint API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflowTemplates(c fiber.Ctx) error {
	req, err := parseListWorkflowTemplatesRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.workflows.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflow_templates": result.WorkflowTemplates,
		"total_count":        result.TotalCount,
		"has_next_page":      result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListWorkflowTemplatesRequest reads pagination, filter and sort query parameters.
// Range checks are left to the service.
func parseListWorkflowTemplatesRequest(c fiber.Ctx) (*services.ListWorkflowTemplatesRequest, error) {
	req := &services.ListWorkflowTemplatesRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		req.Active = &active
	}

	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetWorkflowTemplate(c fiber.Ctx) error {
	id := c.Params("id")

	var (
		workflow *models.WorkflowTemplate
		err      error
	)

	if c.Query("include") == "tree" {
		workflow, err = h.workflows.GetTree(c.Context(), id)
	} else {
		workflow, err = h.workflows.Get(c.Context(), id)
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflowTemplate(c fiber.Ctx) error {
	var req services.CreateWorkflowTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.workflows.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflowTemplate(c fiber.Ctx) error {
	var patch services.WorkflowTemplatePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.workflows.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeactivateWorkflowTemplate(c fiber.Ctx) error {
	updated, err := h.workflows.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflowTemplate(c fiber.Ctx) error {
	err := h.workflows.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CloneWorkflowTemplate(c fiber.Ctx) error {
	var req CloneTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	cloned, err := h.cloning.Clone(c.Context(), services.CloneRequest{
		SourceID:        c.Params("id"),
		NewName:         req.NewName,
		CloneMilestones: req.CloneMilestones,
		CloneTasks:      req.CloneTasks,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(cloned)
}

// GetSchedule projects milestone deadlines from ?start (RFC 3339, default now).
func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	start := time.Now().UTC()

	if startStr := c.Query("start"); startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return badRequest(c, "start must be an RFC 3339 timestamp")
		}

		start = parsed
	}

	tree, err := h.workflows.GetTree(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ScheduleResponse{
		WorkflowTemplateID: tree.ID,
		StartAt:            start,
		Deadlines:          rollup.Schedule(start, tree.Milestones),
	})
}

// ImportWorkflowTemplate accepts a template document as YAML or JSON.
func (h *APIHandlers) ImportWorkflowTemplate(c fiber.Ctx) error {
	tree, err := templatefile.Decode(c.Body())
	if err != nil {
		return handleServiceError(c, err)
	}

	imported, err := h.workflows.Import(c.Context(), tree)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(imported)
}

func (h *APIHandlers) ExportWorkflowTemplate(c fiber.Ctx) error {
	tree, err := h.workflows.GetTree(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	data, err := templatefile.Encode(tree)
	if err != nil {
		return handleServiceError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/yaml")

	return c.Send(data)
}
