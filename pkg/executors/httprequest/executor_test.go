package httprequest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/executors/httprequest"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/testutil"
)

func TestExecuteGetParsesJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	executor := httprequest.NewExecutor(testutil.Logger())
	execution := models.NewExecutionContext("wf-1", "exec-1", nil)

	node := testutil.Node("n1", "httprequest", map[string]any{"url": server.URL})

	result, err := executor.Execute(context.Background(), node, execution)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.Output["status_code"])

	body, ok := result.Output["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, body["ok"])
}

func TestExecutePostSendsJSONBodyAndHeaders(t *testing.T) {
	var received map[string]any

	var gotHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeader = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	executor := httprequest.NewExecutor(testutil.Logger())
	execution := models.NewExecutionContext("wf-1", "exec-1", nil)

	node := testutil.Node("n1", "httprequest", map[string]any{
		"url":     server.URL,
		"method":  "post",
		"body":    map[string]any{"name": "loom"},
		"headers": map[string]any{"X-Token": "secret"},
	})

	result, err := executor.Execute(context.Background(), node, execution)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, result.Output["status_code"])
	assert.Equal(t, "created", result.Output["body"])
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, "loom", received["name"])
}

func TestExecuteTemplatedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/42", r.URL.Path)
		_, _ = w.Write([]byte("{}"))
	}))
	defer server.Close()

	executor := httprequest.NewExecutor(testutil.Logger())
	execution := models.NewExecutionContext("wf-1", "exec-1", map[string]any{"item_id": "42"})

	node := testutil.Node("n1", "httprequest", map[string]any{
		"url": server.URL + "/items/{{.variables.item_id}}",
	})

	_, err := executor.Execute(context.Background(), node, execution)
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	executor := httprequest.NewExecutor(testutil.Logger())

	require.NoError(t, executor.Validate(testutil.Node("n1", "httprequest", map[string]any{"url": "http://example.com"})))
	require.NoError(t, executor.Validate(testutil.Node("n2", "httprequest", map[string]any{"url": "http://example.com", "method": "DELETE"})))

	assert.Error(t, executor.Validate(testutil.Node("n3", "httprequest", nil)))
	assert.Error(t, executor.Validate(testutil.Node("n4", "httprequest", map[string]any{"url": "http://example.com", "method": "TRACE"})))
}
