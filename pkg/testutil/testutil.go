// Package testutil provides workflow builders and a configurable stub
// executor for engine tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomctl/loom/pkg/models"
)

// Logger returns a quiet logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Workflow assembles a definition from nodes and edges.
func Workflow(id string, nodes []*models.WorkflowNode, edges []*models.WorkflowEdge) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:    id,
		Name:  id,
		Nodes: nodes,
		Edges: edges,
	}
}

// Node builds a node of the given type with optional config data.
func Node(id, nodeType string, data map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:   id,
		Type: nodeType,
		Data: data,
	}
}

// Edge builds a dependency edge from source to target.
func Edge(source, target string) *models.WorkflowEdge {
	return &models.WorkflowEdge{
		ID:     fmt.Sprintf("%s-%s", source, target),
		Source: source,
		Target: target,
	}
}

// Chain links the given node ids in sequence.
func Chain(ids ...string) []*models.WorkflowEdge {
	edges := make([]*models.WorkflowEdge, 0, len(ids)-1)
	for i := 1; i < len(ids); i++ {
		edges = append(edges, Edge(ids[i-1], ids[i]))
	}

	return edges
}

// StubExecutor is a NodeExecutor whose behavior tests configure per field.
// The zero value completes every node with an empty output.
type StubExecutor struct {
	Type         string
	Schema       map[string]any
	ExecuteFunc  func(ctx context.Context, node *models.WorkflowNode, execution *models.ExecutionContext) (*models.NodeExecutionResult, error)
	ValidateFunc func(node *models.WorkflowNode) error
}

func (s *StubExecutor) Execute(
	ctx context.Context,
	node *models.WorkflowNode,
	execution *models.ExecutionContext,
) (*models.NodeExecutionResult, error) {
	if s.ExecuteFunc != nil {
		return s.ExecuteFunc(ctx, node, execution)
	}

	return &models.NodeExecutionResult{Output: map[string]any{}}, nil
}

func (s *StubExecutor) Validate(node *models.WorkflowNode) error {
	if s.ValidateFunc != nil {
		return s.ValidateFunc(node)
	}

	return nil
}

func (s *StubExecutor) Info() models.NodeTypeInfo {
	nodeType := s.Type
	if nodeType == "" {
		nodeType = "stub"
	}

	return models.NodeTypeInfo{
		Type:   nodeType,
		Name:   "Stub",
		Schema: s.Schema,
	}
}
