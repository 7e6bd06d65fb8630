// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/loomctl/loom/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
// When ID is empty the server assigns one.
type CreateWorkflowRequest struct {
	ID        string                 `json:"id"        validate:"omitempty,min=1"`
	Name      string                 `json:"name"      validate:"required,min=1"`
	Nodes     []*models.WorkflowNode `json:"nodes"     validate:"required,min=1,dive,required"`
	Edges     []*models.WorkflowEdge `json:"edges"     validate:"dive,required"`
	Variables map[string]any         `json:"variables"`
}

// ExecuteWorkflowRequest represents the request body for starting an execution.
// Variables override the workflow's own variables for this run only.
type ExecuteWorkflowRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

// ExecuteWorkflowResponse is returned when an execution has been accepted.
type ExecuteWorkflowResponse struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	Status      string `json:"status"`
}
