// Package persistence provides the storage abstraction for workflow definitions.
package persistence

import (
	"context"

	"github.com/loomctl/loom/pkg/models"
)

// Persistence stores workflow definitions. Execution state is deliberately
// not persisted: runs live in memory for their lifetime only.
type Persistence interface {
	Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error)
	SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error
	WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	DeleteWorkflow(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
