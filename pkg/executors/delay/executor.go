// Package delay provides a node executor that waits a configured duration.
package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomctl/loom/pkg/models"
)

// Executor sleeps for data.duration_ms milliseconds, honoring the node
// context so the engine timeout and run cancellation cut it short.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With("module", "delay_executor")}
}

func (e *Executor) Execute(
	ctx context.Context,
	node *models.WorkflowNode,
	_ *models.ExecutionContext,
) (*models.NodeExecutionResult, error) {
	duration := durationOf(node)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &models.NodeExecutionResult{
		Output: map[string]any{
			"delayed_ms": duration.Milliseconds(),
		},
	}, nil
}

func (e *Executor) Validate(node *models.WorkflowNode) error {
	raw, ok := node.Data["duration_ms"]
	if !ok {
		return errors.New("missing required field 'duration_ms'")
	}

	ms, ok := asMilliseconds(raw)
	if !ok || ms < 0 {
		return fmt.Errorf("duration_ms must be a non-negative number, got %v", raw)
	}

	return nil
}

func (e *Executor) Info() models.NodeTypeInfo {
	return models.NodeTypeInfo{
		Type:        "delay",
		Name:        "Delay",
		Description: "Waits for a configured duration before completing",
		Inputs: []models.PortSpec{
			{Name: "main", Type: "any"},
		},
		Outputs: []models.PortSpec{
			{Name: "delayed_ms", Type: "number"},
		},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration_ms": map[string]any{
					"type":        "number",
					"minimum":     0,
					"description": "How long to wait, in milliseconds",
				},
				"stop_on_error": map[string]any{
					"type": "boolean",
				},
			},
			"required": []string{"duration_ms"},
		},
	}
}

func durationOf(node *models.WorkflowNode) time.Duration {
	if ms, ok := asMilliseconds(node.Data["duration_ms"]); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}

	return 0
}

// asMilliseconds accepts the numeric types JSON decoding and Go literals
// produce.
func asMilliseconds(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
