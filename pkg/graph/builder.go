// Package graph turns a workflow's node/edge list into an execution-ready
// ordering and the adjacency needed for readiness checks.
package graph

import (
	"errors"
	"fmt"

	"github.com/loomctl/loom/pkg/models"
)

var (
	// ErrCycleDetected indicates the edge set does not form a DAG. It is
	// returned before any node is dispatched, never as a truncated ordering.
	ErrCycleDetected = errors.New("workflow graph contains a cycle")

	// ErrUnknownNode indicates an edge references a node id that is not part
	// of the workflow.
	ErrUnknownNode = errors.New("edge references unknown node")
)

// Graph holds the topological order and adjacency of one workflow.
type Graph struct {
	order    []string
	parents  map[string][]string
	children map[string][]string
}

// Build runs Kahn's algorithm over the workflow: in-degree per node, a FIFO
// seeded with zero-in-degree nodes, pop/append/decrement until exhausted.
// The result is a permutation of all node ids in which every edge (u -> v)
// has u before v. Duplicate edges between the same pair count once.
func Build(workflow *models.WorkflowDefinition) (*Graph, error) {
	inDegree := make(map[string]int, len(workflow.Nodes))
	parents := make(map[string][]string, len(workflow.Nodes))
	children := make(map[string][]string, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		inDegree[node.ID] = 0
	}

	seen := make(map[[2]string]bool, len(workflow.Edges))

	for _, edge := range workflow.Edges {
		if _, ok := inDegree[edge.Source]; !ok {
			return nil, fmt.Errorf("%w: edge %s source %s", ErrUnknownNode, edge.ID, edge.Source)
		}

		if _, ok := inDegree[edge.Target]; !ok {
			return nil, fmt.Errorf("%w: edge %s target %s", ErrUnknownNode, edge.ID, edge.Target)
		}

		pair := [2]string{edge.Source, edge.Target}
		if seen[pair] {
			continue
		}

		seen[pair] = true

		children[edge.Source] = append(children[edge.Source], edge.Target)
		parents[edge.Target] = append(parents[edge.Target], edge.Source)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(workflow.Nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, child := range children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(workflow.Nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable from a root",
			ErrCycleDetected, len(workflow.Nodes)-len(order), len(workflow.Nodes))
	}

	return &Graph{order: order, parents: parents, children: children}, nil
}

// Order returns the topological ordering of all node ids.
func (g *Graph) Order() []string {
	order := make([]string, len(g.order))
	copy(order, g.order)

	return order
}

// Parents returns the upstream dependencies of a node.
func (g *Graph) Parents(nodeID string) []string {
	return g.parents[nodeID]
}

// Children returns the downstream dependents of a node.
func (g *Graph) Children(nodeID string) []string {
	return g.children[nodeID]
}
