package web

import (
	"github.com/dukex/blueprint/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetMilestoneTemplates(c fiber.Ctx) error {
	workflowID := c.Params("id")

	milestones, err := h.milestones.ListByWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(MilestonesResponse{WorkflowTemplateID: workflowID, Milestones: milestones})
}

func (h *APIHandlers) CreateMilestoneTemplate(c fiber.Ctx) error {
	var req services.CreateMilestoneTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.milestones.Create(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ReorderMilestoneTemplates(c fiber.Ctx) error {
	var req ReorderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflowID := c.Params("id")

	milestones, err := h.milestones.Reorder(c.Context(), workflowID, req.Assignments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(MilestonesResponse{WorkflowTemplateID: workflowID, Milestones: milestones})
}

func (h *APIHandlers) GetMilestoneTemplate(c fiber.Ctx) error {
	milestone, err := h.milestones.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(milestone)
}

func (h *APIHandlers) UpdateMilestoneTemplate(c fiber.Ctx) error {
	var patch services.MilestoneTemplatePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.milestones.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteMilestoneTemplate(c fiber.Ctx) error {
	err := h.milestones.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) MoveMilestoneTemplate(c fiber.Ctx) error {
	var req MoveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	milestones, err := h.milestones.Move(c.Context(), c.Params("id"), req.Direction)
	if err != nil {
		return handleServiceError(c, err)
	}

	resp := MilestonesResponse{Milestones: milestones}
	if len(milestones) > 0 {
		resp.WorkflowTemplateID = milestones[0].WorkflowTemplateID
	}

	return c.JSON(resp)
}

func (h *APIHandlers) GetTaskTemplates(c fiber.Ctx) error {
	milestoneID := c.Params("id")

	tasks, err := h.tasks.ListByMilestone(c.Context(), milestoneID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TasksResponse{MilestoneTemplateID: milestoneID, Tasks: tasks})
}

func (h *APIHandlers) CreateTaskTemplate(c fiber.Ctx) error {
	var req services.CreateTaskTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.tasks.Create(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) ReorderTaskTemplates(c fiber.Ctx) error {
	var req ReorderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	milestoneID := c.Params("id")

	tasks, err := h.tasks.Reorder(c.Context(), milestoneID, req.Assignments)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TasksResponse{MilestoneTemplateID: milestoneID, Tasks: tasks})
}

func (h *APIHandlers) GetTaskTemplate(c fiber.Ctx) error {
	task, err := h.tasks.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

func (h *APIHandlers) UpdateTaskTemplate(c fiber.Ctx) error {
	var patch services.TaskTemplatePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.tasks.Update(c.Context(), c.Params("id"), patch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTaskTemplate(c fiber.Ctx) error {
	err := h.tasks.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) MoveTaskTemplate(c fiber.Ctx) error {
	var req MoveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	tasks, err := h.tasks.Move(c.Context(), c.Params("id"), req.Direction)
	if err != nil {
		return handleServiceError(c, err)
	}

	resp := TasksResponse{Tasks: tasks}
	if len(tasks) > 0 {
		resp.MilestoneTemplateID = tasks[0].MilestoneTemplateID
	}

	return c.JSON(resp)
}
