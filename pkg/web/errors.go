package web

import (
	"errors"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleEngineError maps engine and persistence errors to problem documents.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case models.IsDefinitionError(err):
		return problem(c, fiber.StatusBadRequest, "invalid_definition", err.Error())

	case errors.Is(err, persistence.ErrInvalidSortOrder), errors.Is(err, persistence.ErrInvalidID):
		return badRequest(c, err.Error())

	case persistence.IsWorkflowNotFound(err), errors.Is(err, workflow.ErrWorkflowNotLoaded):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")

	case persistence.IsExecutionNotFound(err):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")

	case errors.Is(err, workflow.ErrActionNotFound):
		return problem(c, fiber.StatusNotFound, "action_not_found", err.Error())

	case errors.Is(err, workflow.ErrStaleVersion):
		return problem(c, fiber.StatusConflict, "stale_version", err.Error())

	case errors.Is(err, workflow.ErrNotRetryable):
		return problem(c, fiber.StatusConflict, "not_retryable", err.Error())

	case models.IsPoolSaturated(err):
		return problem(c, fiber.StatusServiceUnavailable, "pool_saturated", err.Error())

	case errors.Is(err, workflow.ErrRetryUnavailable):
		return problem(c, fiber.StatusServiceUnavailable, "retry_unavailable", err.Error())

	default:
		return internalError(c, err)
	}
}
