package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/registry"
	"github.com/loomctl/loom/pkg/testutil"
)

func TestResolveUnregisteredType(t *testing.T) {
	reg := registry.NewRegistry(testutil.Logger())

	executor, err := reg.Resolve("nope")
	require.ErrorIs(t, err, registry.ErrNodeTypeNotRegistered)
	assert.Nil(t, executor)
}

func TestRegisterAndResolve(t *testing.T) {
	reg := registry.NewRegistry(testutil.Logger())
	reg.Register(&testutil.StubExecutor{Type: "stub"})

	executor, err := reg.Resolve("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", executor.Info().Type)
	assert.Equal(t, 1, reg.Len())
}

func TestExecutorsSortedByType(t *testing.T) {
	reg := registry.NewRegistry(testutil.Logger())
	reg.Register(&testutil.StubExecutor{Type: "zeta"})
	reg.Register(&testutil.StubExecutor{Type: "alpha"})

	infos := reg.Executors()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Type)
	assert.Equal(t, "zeta", infos[1].Type)
}

func TestValidateConfigAgainstSchema(t *testing.T) {
	reg := registry.NewRegistry(testutil.Logger())
	reg.Register(&testutil.StubExecutor{
		Type: "schema",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
	})

	valid := testutil.Node("n1", "schema", map[string]any{"message": "hi"})
	require.NoError(t, reg.ValidateConfig(valid))

	missing := testutil.Node("n2", "schema", nil)
	err := reg.ValidateConfig(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "n2")

	wrongType := testutil.Node("n3", "schema", map[string]any{"message": 7})
	assert.Error(t, reg.ValidateConfig(wrongType))
}

func TestValidateConfigWithoutSchema(t *testing.T) {
	reg := registry.NewRegistry(testutil.Logger())
	reg.Register(&testutil.StubExecutor{Type: "bare"})

	node := testutil.Node("n1", "bare", nil)
	assert.NoError(t, reg.ValidateConfig(node))
}
