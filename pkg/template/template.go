// Package template provides templating for dynamic node configuration values.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/loomctl/loom/pkg/models"
)

// RenderWithExecution renders a template string against the live execution
// state: run variables, node results so far, and execution identity.
func RenderWithExecution(input string, execution *models.ExecutionContext) (any, error) {
	nodeResults := make(map[string]any)

	for id, result := range execution.NodeResults() {
		nodeResults[id] = map[string]any{
			"status": string(result.Status),
			"output": result.Output,
			"error":  result.Error,
		}
	}

	variables := execution.Variables()

	data := map[string]any{
		"variables":    variables,
		"vars":         variables,
		"node_results": nodeResults,
		"env":          envVars(),
		"execution": map[string]any{
			"id":          execution.ID,
			"workflow_id": execution.WorkflowID,
		},
	}

	return Render(input, data)
}

// Render executes a text/template over data. Output that looks like JSON is
// re-parsed so templates can produce structured values, not just strings.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("render").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var parsed any
		if err := json.Unmarshal([]byte(result), &parsed); err == nil {
			return parsed, nil
		}
	}

	return result, nil
}

func envVars() map[string]string {
	vars := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	return vars
}
