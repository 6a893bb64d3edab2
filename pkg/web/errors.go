package web

import (
	"errors"
	"strings"

	"github.com/dukex/blueprint/pkg/services"
	"github.com/dukex/blueprint/pkg/templatefile"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unavailable(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(503).
		WithInstance(c.Path()).
		WithType("unavailable").
		WithDetail(detail)

	return c.Status(fiber.StatusServiceUnavailable).JSON(problem)
}

// problemType turns a service error code such as DUPLICATE_NAME into duplicate_name.
func problemType(err error, fallback string) string {
	var serviceErr *services.ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Code != "" {
		return strings.ToLower(serviceErr.Code)
	}

	return fallback
}

// handleServiceError maps the four service error kinds to problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(problemType(err, "validation_error")).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case errors.Is(err, templatefile.ErrInvalidDocument):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_document").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case services.IsUpstreamError(err):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("upstream_failure").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
