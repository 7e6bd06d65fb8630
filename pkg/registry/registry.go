// Package registry maps node types to their executors.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/protocol"
)

// ErrNodeTypeNotRegistered indicates a workflow references a node type no
// executor was registered for. Kept as an explicit sentinel so callers can
// distinguish it from a node's own failure.
var ErrNodeTypeNotRegistered = errors.New("node type not registered")

// Registry is a type -> executor lookup table. Safe for concurrent use;
// registrations normally happen once at startup.
type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	executors map[string]protocol.NodeExecutor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[string]protocol.NodeExecutor),
	}
}

// Register adds an executor under the type its Info declares. Registering
// the same type twice replaces the previous executor.
func (r *Registry) Register(executor protocol.NodeExecutor) {
	info := executor.Info()

	r.mu.Lock()
	r.executors[info.Type] = executor
	r.mu.Unlock()

	r.logger.Debug("Registered node executor", "node_type", info.Type)
}

// Resolve returns the executor for a node type.
func (r *Registry) Resolve(nodeType string) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	executor, ok := r.executors[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeTypeNotRegistered, nodeType)
	}

	return executor, nil
}

// Executors returns the info of every registered executor, sorted by type.
func (r *Registry) Executors() []models.NodeTypeInfo {
	r.mu.RLock()
	infos := make([]models.NodeTypeInfo, 0, len(r.executors))

	for _, executor := range r.executors {
		infos = append(infos, executor.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })

	return infos
}

// Len returns the number of registered executors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.executors)
}

// ValidateConfig checks a node's Data against the JSON schema its executor
// publishes, when one is published. Executors without a schema are skipped;
// their Validate method remains the authority.
func (r *Registry) ValidateConfig(node *models.WorkflowNode) error {
	executor, err := r.Resolve(node.Type)
	if err != nil {
		return err
	}

	schema := executor.Info().Schema
	if schema == nil {
		return nil
	}

	data := node.Data
	if data == nil {
		data = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation for node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return fmt.Errorf("node %s config does not match %s schema: %v", node.ID, node.Type, msgs)
	}

	return nil
}
