package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNodeConfig indicates an executor rejected a node's Data
	// configuration before execution.
	ErrInvalidNodeConfig = errors.New("invalid node configuration")

	// ErrExecutionTimeout indicates a node exceeded the configured deadline.
	// Propagation-wise it is an ordinary execution error.
	ErrExecutionTimeout = errors.New("node execution timed out")

	// ErrExecutionNotFound indicates a lifecycle operation referenced an
	// execution that is not in the active table.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrInvalidWorkflow indicates the workflow definition failed structural
	// validation before any node was dispatched.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
)

// NodeExecutionError wraps an error raised by a node executor, preserving
// which node and type produced it.
type NodeExecutionError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether the error is a per-node timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrExecutionTimeout)
}
