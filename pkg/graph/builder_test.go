package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/graph"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/testutil"
)

func nodeIndex(order []string) map[string]int {
	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}

	return index
}

func TestBuildLinearChain(t *testing.T) {
	workflow := testutil.Workflow("wf-linear",
		[]*models.WorkflowNode{
			testutil.Node("c", "stub", nil),
			testutil.Node("a", "stub", nil),
			testutil.Node("b", "stub", nil),
		},
		testutil.Chain("a", "b", "c"),
	)

	g, err := graph.Build(workflow)
	require.NoError(t, err)

	order := g.Order()
	require.Len(t, order, 3)

	index := nodeIndex(order)
	assert.Less(t, index["a"], index["b"])
	assert.Less(t, index["b"], index["c"])
}

func TestBuildDiamondRespectsAllEdges(t *testing.T) {
	workflow := testutil.Workflow("wf-diamond",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
			testutil.Node("b", "stub", nil),
			testutil.Node("c", "stub", nil),
			testutil.Node("d", "stub", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "b"),
			testutil.Edge("a", "c"),
			testutil.Edge("b", "d"),
			testutil.Edge("c", "d"),
		},
	)

	g, err := graph.Build(workflow)
	require.NoError(t, err)

	index := nodeIndex(g.Order())
	assert.Less(t, index["a"], index["b"])
	assert.Less(t, index["a"], index["c"])
	assert.Less(t, index["b"], index["d"])
	assert.Less(t, index["c"], index["d"])
}

func TestBuildCycleReturnsError(t *testing.T) {
	workflow := testutil.Workflow("wf-cycle",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
			testutil.Node("b", "stub", nil),
			testutil.Node("c", "stub", nil),
		},
		testutil.Chain("a", "b", "c", "a"),
	)

	g, err := graph.Build(workflow)
	require.ErrorIs(t, err, graph.ErrCycleDetected)
	assert.Nil(t, g)
}

func TestBuildSelfLoopReturnsError(t *testing.T) {
	workflow := testutil.Workflow("wf-self",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "a"),
		},
	)

	_, err := graph.Build(workflow)
	require.ErrorIs(t, err, graph.ErrCycleDetected)
}

func TestBuildUnknownEdgeEndpoint(t *testing.T) {
	workflow := testutil.Workflow("wf-unknown",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "ghost"),
		},
	)

	_, err := graph.Build(workflow)
	require.ErrorIs(t, err, graph.ErrUnknownNode)
}

func TestBuildDuplicateEdgesCountOnce(t *testing.T) {
	workflow := testutil.Workflow("wf-dup",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
			testutil.Node("b", "stub", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "b"),
			{ID: "dup", Source: "a", Target: "b"},
		},
	)

	g, err := graph.Build(workflow)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, g.Parents("b"))
	assert.Equal(t, []string{"b"}, g.Children("a"))
}

func TestBuildDisconnectedNodesAppearInOrder(t *testing.T) {
	workflow := testutil.Workflow("wf-island",
		[]*models.WorkflowNode{
			testutil.Node("a", "stub", nil),
			testutil.Node("island", "stub", nil),
		},
		nil,
	)

	g, err := graph.Build(workflow)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "island"}, g.Order())
	assert.Empty(t, g.Parents("island"))
}
