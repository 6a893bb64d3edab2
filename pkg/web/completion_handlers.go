package web

import (
	"github.com/dukex/blueprint/pkg/events"
	"github.com/dukex/blueprint/pkg/services"
	"github.com/gofiber/fiber/v3"
)

const ticketingUnavailable = "ticketing collaborator is not configured"

func (h *APIHandlers) GetCompletion(c fiber.Ctx) error {
	if h.completion == nil {
		return unavailable(c, ticketingUnavailable)
	}

	report, err := h.completion.Status(c.Context(), c.Params("ticketId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) EvaluateCompletion(c fiber.Ctx) error {
	if h.completion == nil {
		return unavailable(c, ticketingUnavailable)
	}

	result, err := h.completion.Evaluate(c.Context(), c.Params("ticketId"))

	return evaluationResponse(c, result, err)
}

func (h *APIHandlers) Resignal(c fiber.Ctx) error {
	if h.completion == nil {
		return unavailable(c, ticketingUnavailable)
	}

	record, err := h.completion.Resignal(c.Context(), c.Params("ticketId"), c.Params("milestoneId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

// TaskStatusWebhook receives task transitions pushed by the ticketing system.
func (h *APIHandlers) TaskStatusWebhook(c fiber.Ctx) error {
	if h.completion == nil {
		return unavailable(c, ticketingUnavailable)
	}

	var req TaskStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := events.NewTaskStatusChanged(req.TicketID, req.TaskID, req.MilestoneTemplateID, req.From, req.To)

	result, err := h.completion.HandleTaskStatusChanged(c.Context(), event)

	return evaluationResponse(c, result, err)
}

// evaluationResponse reports partial signaling failures as 502 with the evaluation body,
// so callers see which milestones fired and which need Resignal.
func evaluationResponse(c fiber.Ctx, result *services.EvaluationResult, err error) error {
	if err != nil {
		if result != nil && services.IsUpstreamError(err) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"result": result,
				"detail": err.Error(),
			})
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}
