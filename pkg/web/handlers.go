// Package web provides HTTP handlers and REST API endpoints for workflow
// management and execution control.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/persistence"
)

type APIHandlers struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	eng *engine.Engine,
	store persistence.Persistence,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:      eng,
		persistence: store,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	} else {
		_, err := h.persistence.WorkflowByID(c.Context(), req.ID)
		if err == nil {
			return conflict(c, "workflow "+req.ID+" already exists")
		}

		if !persistence.IsWorkflowNotFound(err) {
			return internalError(c, err)
		}
	}

	workflow := &models.WorkflowDefinition{
		ID:        req.ID,
		Name:      req.Name,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		Variables: req.Variables,
	}

	if err := h.persistence.SaveWorkflow(c.Context(), workflow); err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.persistence.DeleteWorkflow(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow schedules an asynchronous run of a stored workflow and
// returns 202 with the execution id.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	workflow, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	executionID, err := h.engine.ExecuteAsync(c.Context(), workflow, req.Variables)
	if err != nil {
		return handleEngineError(c, err)
	}

	h.logger.Info("Execution scheduled", "workflow_id", id, "execution_id", executionID)

	return c.Status(fiber.StatusAccepted).JSON(ExecuteWorkflowResponse{
		ExecutionID: executionID,
		WorkflowID:  id,
		Status:      string(models.ExecutionStatusRunning),
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	active := h.engine.ActiveExecutions()

	snapshots := make([]*models.ExecutionSnapshot, 0, len(active))
	for _, execution := range active {
		snapshots = append(snapshots, execution.Snapshot())
	}

	return c.JSON(fiber.Map{
		"executions":  snapshots,
		"total_count": len(snapshots),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution := h.engine.ExecutionStatus(id)
	if execution == nil {
		return notFound(c, "execution not found")
	}

	return c.JSON(execution.Snapshot())
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.engine.Pause)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.engine.Resume)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	return h.controlExecution(c, h.engine.Cancel)
}

func (h *APIHandlers) controlExecution(
	c fiber.Ctx,
	action func(ctx context.Context, executionID string) error,
) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := action(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	execution := h.engine.ExecutionStatus(id)
	if execution == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	return c.JSON(execution.Snapshot())
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	nodeTypes := h.engine.Registry().Executors()

	return c.JSON(fiber.Map{
		"node_types":  nodeTypes,
		"total_count": len(nodeTypes),
	})
}

func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	return c.JSON(h.engine.Stats())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Loom API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Loom API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}
