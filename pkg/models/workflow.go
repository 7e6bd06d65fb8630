// Package models defines the core domain models for graph-based workflow execution.
package models

// WorkflowDefinition is the immutable input to a single engine run: a set of
// typed nodes connected by directed edges, plus run-level variables.
type WorkflowDefinition struct {
	ID        string          `json:"id"        validate:"required"`
	Name      string          `json:"name"      validate:"required,min=1"`
	Nodes     []*WorkflowNode `json:"nodes"     validate:"required,min=1,dive,required"`
	Edges     []*WorkflowEdge `json:"edges"     validate:"dive,required"`
	Variables map[string]any  `json:"variables,omitempty"`
}

// Node returns the node with the given id, or nil when absent.
func (w *WorkflowDefinition) Node(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// WorkflowNode is a unit of work in a workflow, typed by Type and configured
// through the executor-specific Data map. PositionX/PositionY are canvas
// metadata carried for round-tripping; the engine never reads them.
type WorkflowNode struct {
	ID        string         `json:"id"   validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
	Inputs    []string       `json:"inputs,omitempty"`
	Outputs   []string       `json:"outputs,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// StopOnError reports whether a failure of this node aborts the whole run.
// Defaults to true; a node opts out with data.stop_on_error = false.
func (n *WorkflowNode) StopOnError() bool {
	if n.Data == nil {
		return true
	}

	if v, ok := n.Data["stop_on_error"].(bool); ok {
		return v
	}

	return true
}

// WorkflowEdge is a hard dependency between two nodes: Target may not start
// until Source has a completed result.
type WorkflowEdge struct {
	ID           string  `json:"id"     validate:"required"`
	Source       string  `json:"source" validate:"required"`
	Target       string  `json:"target" validate:"required"`
	SourceHandle *string `json:"source_handle,omitempty"`
	TargetHandle *string `json:"target_handle,omitempty"`
}
