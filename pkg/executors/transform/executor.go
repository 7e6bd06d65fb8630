// Package transform provides the data mapping node executor.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/template"
)

// Executor renders a template expression over the execution state and emits
// the resulting value. Expressions producing JSON yield structured output.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With("module", "transform_executor")}
}

func (e *Executor) Execute(
	_ context.Context,
	node *models.WorkflowNode,
	execution *models.ExecutionContext,
) (*models.NodeExecutionResult, error) {
	expression, _ := node.Data["expression"].(string)

	result, err := template.RenderWithExecution(expression, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to render expression: %w", err)
	}

	return &models.NodeExecutionResult{
		Output: map[string]any{
			"result": result,
		},
	}, nil
}

func (e *Executor) Validate(node *models.WorkflowNode) error {
	if _, ok := node.Data["expression"].(string); !ok {
		return errors.New("missing required field 'expression'")
	}

	return nil
}

func (e *Executor) Info() models.NodeTypeInfo {
	return models.NodeTypeInfo{
		Type:        "transform",
		Name:        "Transform",
		Description: "Maps execution state to a new value through a template expression",
		Inputs: []models.PortSpec{
			{Name: "main", Type: "any"},
		},
		Outputs: []models.PortSpec{
			{Name: "result", Type: "any"},
		},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Template expression evaluated against variables and node results",
				},
				"stop_on_error": map[string]any{
					"type": "boolean",
				},
			},
			"required": []string{"expression"},
		},
	}
}
