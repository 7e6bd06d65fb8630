package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loomctl/loom/pkg/events"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/otelhelper"
)

// runNode is the per-node execution wrapper: it records the running result,
// resolves and validates the executor, races execution against the node
// timeout, and writes exactly one terminal result.
func (d *dispatcher) runNode(ctx context.Context, node *models.WorkflowNode) {
	logger := d.logger.With("node_id", node.ID, "node_type", node.Type)

	d.execution.BeginNode(node.ID, d.collectInput(node))
	logger.Debug("Node started")
	d.engine.publish(ctx, events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, d.execution.WorkflowID, d.execution.ID),
		NodeID:    node.ID,
		NodeType:  node.Type,
	})

	ctx, span := otelhelper.StartSpan(ctx, d.engine.tracer, "node.execute",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.String(otelhelper.ExecutionIDKey, d.execution.ID),
	)
	defer span.End()

	result, err := d.invoke(ctx, node)
	if err != nil {
		d.failNode(ctx, node, err, span)

		return
	}

	var output, metadata map[string]any
	if result != nil {
		output = result.Output
		metadata = result.Metadata
	}

	final := d.execution.CompleteNode(node.ID, output, metadata)
	logger.Info("Node completed", "duration_ms", final.DurationMs)
	d.engine.publish(ctx, events.NodeCompleted{
		BaseEvent: events.NewBaseEvent(events.NodeCompletedEvent, d.execution.WorkflowID, d.execution.ID),
		NodeID:    node.ID,
		Result:    final,
	})
}

// invoke resolves the executor and runs it under the per-node deadline. The
// executor goroutine is abandoned on timeout; its late result, if any, is
// discarded so the recorded result never regresses.
func (d *dispatcher) invoke(ctx context.Context, node *models.WorkflowNode) (*models.NodeExecutionResult, error) {
	executor, err := d.engine.registry.Resolve(node.Type)
	if err != nil {
		return nil, err
	}

	// the published schema first, then the executor's own checks
	if err := d.engine.registry.ValidateConfig(node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeConfig, err)
	}

	if err := executor.Validate(node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeConfig, err)
	}

	timeout := d.engine.config.NodeTimeout

	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result *models.NodeExecutionResult
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, execErr := executor.Execute(nodeCtx, node, d.execution)
		done <- outcome{result: result, err: execErr}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: node %s exceeded %s", ErrExecutionTimeout, node.ID, timeout)
			}

			return nil, &NodeExecutionError{NodeID: node.ID, NodeType: node.Type, Err: out.err}
		}

		return out.result, nil
	case <-nodeCtx.Done():
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: node %s exceeded %s", ErrExecutionTimeout, node.ID, timeout)
		}

		return nil, nodeCtx.Err()
	}
}

func (d *dispatcher) failNode(ctx context.Context, node *models.WorkflowNode, err error, span trace.Span) {
	final := d.execution.FailNode(node.ID, err.Error())
	otelhelper.SetError(span, err)

	if IsTimeout(err) {
		d.logger.Error("Node timed out", "node_id", node.ID, "error", err)
	} else {
		d.logger.Error("Node failed", "node_id", node.ID, "error", err)
	}

	d.engine.publish(ctx, events.NodeFailed{
		BaseEvent: events.NewBaseEvent(events.NodeFailedEvent, d.execution.WorkflowID, d.execution.ID),
		NodeID:    node.ID,
		Error:     err.Error(),
		Result:    final,
	})

	if node.StopOnError() {
		if d.execution.Fail(err.Error()) {
			d.logger.Error("Aborting execution on node failure", "node_id", node.ID)
		}
	}
}

// collectInput gathers the outputs of the node's completed parents, keyed by
// parent node id.
func (d *dispatcher) collectInput(node *models.WorkflowNode) map[string]any {
	parents := d.graph.Parents(node.ID)
	if len(parents) == 0 {
		return nil
	}

	input := make(map[string]any, len(parents))

	for _, parent := range parents {
		if result := d.execution.NodeResult(parent); result != nil && result.Output != nil {
			input[parent] = result.Output
		}
	}

	return input
}
