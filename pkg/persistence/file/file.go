// Package file provides file-based persistence for workflow definitions.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/persistence"
)

// Persistence stores each workflow definition as <root>/workflows/<id>.json.
type Persistence struct {
	root string
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	dir := os.DirFS(p.workflowsDir())

	files, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(files))

	for _, file := range files {
		id := strings.TrimSuffix(file, ".json")

		workflow, err := p.WorkflowByID(ctx, id)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.WorkflowDefinition) error {
	if err := os.MkdirAll(p.workflowsDir(), 0o755); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	payload, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err := os.WriteFile(p.workflowPath(workflow.ID), payload, 0o644); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	payload, err := os.ReadFile(p.workflowPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
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

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	err := os.Remove(p.workflowPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
		}

		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); errors.Is(err, os.ErrNotExist) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) workflowsDir() string {
	return filepath.Join(p.root, "workflows")
}

func (p *Persistence) workflowPath(id string) string {
	return filepath.Join(p.workflowsDir(), id+".json")
}
