// Package httprequest provides the HTTP action node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/template"
)

var validMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

// Executor performs an HTTP request described by node.Data. The request
// inherits the node context, so the engine's per-node timeout bounds it.
type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		client: &http.Client{},
		logger: logger.With("module", "httprequest_executor"),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	node *models.WorkflowNode,
	execution *models.ExecutionContext,
) (*models.NodeExecutionResult, error) {
	rawURL, _ := node.Data["url"].(string)

	rendered, err := template.RenderWithExecution(rawURL, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to render url: %w", err)
	}

	url := fmt.Sprintf("%v", rendered)

	method, _ := node.Data["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if rawBody, ok := node.Data["body"]; ok {
		payload, err := json.Marshal(rawBody)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		body = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if headers, ok := node.Data["headers"].(map[string]any); ok {
		for name, value := range headers {
			req.Header.Set(name, fmt.Sprintf("%v", value))
		}
	}

	e.logger.Debug("Performing HTTP request", "method", req.Method, "url", url, "node_id", node.ID)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		parsed = string(raw)
	}

	return &models.NodeExecutionResult{
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        parsed,
		},
		Metadata: map[string]any{
			"url":    url,
			"method": req.Method,
		},
	}, nil
}

func (e *Executor) Validate(node *models.WorkflowNode) error {
	url, ok := node.Data["url"].(string)
	if !ok || url == "" {
		return errors.New("missing required field 'url'")
	}

	if method, ok := node.Data["method"].(string); ok && method != "" {
		if !validMethods[strings.ToUpper(method)] {
			return fmt.Errorf("unsupported HTTP method %q", method)
		}
	}

	return nil
}

func (e *Executor) Info() models.NodeTypeInfo {
	return models.NodeTypeInfo{
		Type:        "httprequest",
		Name:        "HTTP Request",
		Description: "Performs an HTTP request and exposes status code and parsed body",
		Inputs: []models.PortSpec{
			{Name: "main", Type: "any"},
		},
		Outputs: []models.PortSpec{
			{Name: "status_code", Type: "number"},
			{Name: "body", Type: "any"},
		},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Request URL. Supports templating with execution state.",
				},
				"method": map[string]any{
					"type":    "string",
					"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
					"default": "GET",
				},
				"headers": map[string]any{
					"type": "object",
				},
				"body": map[string]any{},
				"stop_on_error": map[string]any{
					"type": "boolean",
				},
			},
			"required": []string{"url"},
		},
	}
}
