package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/persistence"
	"github.com/loomctl/loom/pkg/persistence/file"
	"github.com/loomctl/loom/pkg/testutil"
)

func testWorkflow(id string) *models.WorkflowDefinition {
	return testutil.Workflow(id,
		[]*models.WorkflowNode{testutil.Node("a", "log", map[string]any{"message": "hi"})},
		nil,
	)
}

func TestSaveAndLoadWorkflow(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	workflow := testWorkflow("wf-1")
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)

	assert.Equal(t, workflow.ID, loaded.ID)
	assert.Equal(t, workflow.Name, loaded.Name)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "log", loaded.Nodes[0].Type)
}

func TestWorkflowByIDNotFound(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	_, err := store.WorkflowByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowsListsAll(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveWorkflow(ctx, testWorkflow("wf-1")))
	require.NoError(t, store.SaveWorkflow(ctx, testWorkflow("wf-2")))

	workflows, err := store.Workflows(ctx)
	require.NoError(t, err)
	assert.Len(t, workflows, 2)
}

func TestDeleteWorkflow(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.SaveWorkflow(ctx, testWorkflow("wf-1")))
	require.NoError(t, store.DeleteWorkflow(ctx, "wf-1"))

	_, err := store.WorkflowByID(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = store.DeleteWorkflow(ctx, "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowByIDCorruptFile(t *testing.T) {
	root := t.TempDir()
	store := file.NewPersistence(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "workflows"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "workflows", "bad.json"), []byte("{not json"), 0o644))

	_, err := store.WorkflowByID(context.Background(), "bad")
	require.ErrorIs(t, err, persistence.ErrInvalidWorkflow)
}

func TestFileURLPrefixStripped(t *testing.T) {
	root := t.TempDir()
	store := file.NewPersistence("file://" + root)
	ctx := context.Background()

	require.NoError(t, store.SaveWorkflow(ctx, testWorkflow("wf-1")))

	_, err := os.Stat(filepath.Join(root, "workflows", "wf-1.json"))
	require.NoError(t, err)

	require.NoError(t, store.HealthCheck(ctx))
}
