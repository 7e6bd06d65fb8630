// Package protocol defines the interfaces and contracts for pluggable node executors.
package protocol

import (
	"context"

	"github.com/loomctl/loom/pkg/models"
)

// NodeExecutor is the sole seam between the scheduling engine and concrete
// node business logic. The engine depends only on this interface shape; it
// never knows what a node actually does.
type NodeExecutor interface {
	// Execute runs the node against the shared execution context and returns
	// its output and metadata. The engine owns timing, status and event
	// bookkeeping; implementations only fill Output and Metadata. Blocking
	// work must honor ctx, which carries the per-node timeout.
	Execute(ctx context.Context, node *models.WorkflowNode, execution *models.ExecutionContext) (*models.NodeExecutionResult, error)

	// Validate checks the node's Data configuration before execution.
	Validate(node *models.WorkflowNode) error

	// Info describes the node type: identity, ports and config schema.
	Info() models.NodeTypeInfo
}
