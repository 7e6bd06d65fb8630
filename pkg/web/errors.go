package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/graph"
	"github.com/loomctl/loom/pkg/persistence"
	"github.com/loomctl/loom/pkg/registry"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps engine and persistence errors to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, graph.ErrCycleDetected),
		errors.Is(err, graph.ErrUnknownNode),
		errors.Is(err, engine.ErrInvalidWorkflow),
		errors.Is(err, engine.ErrInvalidNodeConfig),
		errors.Is(err, registry.ErrNodeTypeNotRegistered):
		return badRequest(c, err.Error())

	case errors.Is(err, engine.ErrExecutionNotFound):
		return notFound(c, "execution not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	default:
		return internalError(c, err)
	}
}
