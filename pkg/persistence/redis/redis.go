// Package redis provides Redis-backed persistence for workflow definitions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/persistence"
)

const (
	workflowKeyPrefix = "loom:workflow:"
	workflowIndexKey  = "loom:workflows"
)

// Persistence stores each workflow definition as a JSON value under
// loom:workflow:<id>, with loom:workflows as the id index set.
type Persistence struct {
	client *goredis.Client
}

func NewPersistence(url string) (*Persistence, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return &Persistence{client: goredis.NewClient(opts)}, nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := p.client.SMembers(ctx, workflowIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		workflow, err := p.WorkflowByID(ctx, id)
		if err != nil {
			// Index entries can outlive their value when a delete is
			// interrupted between commands.
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	payload, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, workflowKeyPrefix+workflow.ID, payload, 0)
	pipe.SAdd(ctx, workflowIndexKey, workflow.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	payload, err := p.client.Get(ctx, workflowKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewWorkflowError("Get", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("Get", id, err)
	}

	var workflow models.WorkflowDefinition
	if err := json.Unmarshal(payload, &workflow); err != nil {
		return nil, persistence.NewWorkflowError("Get", id, fmt.Errorf("%w: %v", persistence.ErrInvalidWorkflow, err))
	}

	return &workflow, nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	deleted, err := p.client.Del(ctx, workflowKeyPrefix+id).Result()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if err := p.client.SRem(ctx, workflowIndexKey, id).Err(); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if deleted == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
