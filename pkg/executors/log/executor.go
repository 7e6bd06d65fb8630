// Package log provides the logging node executor.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/template"
)

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Executor logs a templated message at a configured level. One instance
// serves every node of type "log"; per-node settings come from node.Data.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With("module", "log_executor")}
}

func (e *Executor) Execute(
	_ context.Context,
	node *models.WorkflowNode,
	execution *models.ExecutionContext,
) (*models.NodeExecutionResult, error) {
	message, _ := node.Data["message"].(string)

	rendered, err := template.RenderWithExecution(message, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to render log message: %w", err)
	}

	text := fmt.Sprintf("%v", rendered)

	level, _ := node.Data["level"].(string)

	logger := e.logger.With("node_id", node.ID, "execution_id", execution.ID)

	switch level {
	case "debug":
		logger.Debug(text)
	case "warn":
		logger.Warn(text)
	case "error":
		logger.Error(text)
	default:
		level = "info"

		logger.Info(text)
	}

	return &models.NodeExecutionResult{
		Output: map[string]any{
			"message": text,
			"level":   level,
			"logged":  true,
		},
	}, nil
}

func (e *Executor) Validate(node *models.WorkflowNode) error {
	if _, ok := node.Data["message"].(string); !ok {
		return errors.New("missing required field 'message'")
	}

	if level, ok := node.Data["level"].(string); ok && !validLevels[level] {
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", level)
	}

	return nil
}

func (e *Executor) Info() models.NodeTypeInfo {
	return models.NodeTypeInfo{
		Type:        "log",
		Name:        "Log",
		Description: "Logs a templated message at the configured level",
		Inputs: []models.PortSpec{
			{Name: "main", Type: "any"},
		},
		Outputs: []models.PortSpec{
			{Name: "message", Type: "string"},
			{Name: "level", Type: "string"},
			{Name: "logged", Type: "boolean"},
		},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Message to log. Supports templating with execution state.",
				},
				"level": map[string]any{
					"type":    "string",
					"enum":    []string{"debug", "info", "warn", "error"},
					"default": "info",
				},
				"stop_on_error": map[string]any{
					"type": "boolean",
				},
			},
			"required": []string{"message"},
		},
	}
}
