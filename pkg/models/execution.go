package models

import (
	"sync"
	"time"
)

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusIdle      ExecutionStatus = "idle"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// NodeExecutionStatus represents the lifecycle state of a single node run.
type NodeExecutionStatus string

const (
	NodeStatusPending   NodeExecutionStatus = "pending"
	NodeStatusRunning   NodeExecutionStatus = "running"
	NodeStatusCompleted NodeExecutionStatus = "completed"
	NodeStatusFailed    NodeExecutionStatus = "failed"
	NodeStatusSkipped   NodeExecutionStatus = "skipped"
)

// Terminal reports whether the node status is final.
func (s NodeExecutionStatus) Terminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusSkipped
}

// NodeExecutionResult records one node's run within an execution.
type NodeExecutionResult struct {
	NodeID     string              `json:"node_id"`
	Status     NodeExecutionStatus `json:"status"`
	StartTime  time.Time           `json:"start_time"`
	EndTime    *time.Time          `json:"end_time,omitempty"`
	Input      map[string]any      `json:"input,omitempty"`
	Output     map[string]any      `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMs int64               `json:"duration_ms,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
}

// ExecutionContext is the per-run state container shared across all work for
// one execution. Node results are written by concurrently running node
// goroutines, so every mutation goes through the mutex; a node's status is
// written at most twice (running, then terminal) and never regresses.
type ExecutionContext struct {
	WorkflowID string
	ID         string
	StartTime  time.Time

	mu          sync.RWMutex
	variables   map[string]any
	status      ExecutionStatus
	endTime     *time.Time
	errMsg      string
	nodeResults map[string]*NodeExecutionResult
}

// NewExecutionContext creates an idle context for one run.
func NewExecutionContext(workflowID, executionID string, variables map[string]any) *ExecutionContext {
	vars := make(map[string]any, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	return &ExecutionContext{
		WorkflowID:  workflowID,
		ID:          executionID,
		StartTime:   time.Now().UTC(),
		variables:   vars,
		status:      ExecutionStatusIdle,
		nodeResults: make(map[string]*NodeExecutionResult),
	}
}

// Status returns the current execution status.
func (c *ExecutionContext) Status() ExecutionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// Error returns the run-level error message, if any.
func (c *ExecutionContext) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.errMsg
}

// EndTime returns the terminal timestamp, or nil while the run is live.
func (c *ExecutionContext) EndTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.endTime
}

// Variable returns a run variable.
func (c *ExecutionContext) Variable(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.variables[key]

	return v, ok
}

// Variables returns a copy of the run variables.
func (c *ExecutionContext) Variables() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vars := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		vars[k] = v
	}

	return vars
}

// Begin transitions idle -> running.
func (c *ExecutionContext) Begin() bool {
	return c.transition(ExecutionStatusRunning, ExecutionStatusIdle)
}

// Pause transitions running -> paused.
func (c *ExecutionContext) Pause() bool {
	return c.transition(ExecutionStatusPaused, ExecutionStatusRunning)
}

// Resume transitions paused -> running.
func (c *ExecutionContext) Resume() bool {
	return c.transition(ExecutionStatusRunning, ExecutionStatusPaused)
}

// Cancel transitions idle|running|paused -> cancelled and stamps the end
// time. Cancelling an idle context covers the window between scheduling a run
// and its first loop iteration; Begin then refuses to start it.
func (c *ExecutionContext) Cancel() bool {
	return c.finish(ExecutionStatusCancelled, "",
		ExecutionStatusIdle, ExecutionStatusRunning, ExecutionStatusPaused)
}

// Complete transitions running -> completed and stamps the end time.
func (c *ExecutionContext) Complete() bool {
	return c.finish(ExecutionStatusCompleted, "", ExecutionStatusRunning)
}

// Fail transitions running|paused -> failed, records the run-level error and
// stamps the end time.
func (c *ExecutionContext) Fail(errMsg string) bool {
	return c.finish(ExecutionStatusFailed, errMsg, ExecutionStatusRunning, ExecutionStatusPaused)
}

func (c *ExecutionContext) transition(to ExecutionStatus, from ...ExecutionStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range from {
		if c.status == f {
			c.status = to

			return true
		}
	}

	return false
}

func (c *ExecutionContext) finish(to ExecutionStatus, errMsg string, from ...ExecutionStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range from {
		if c.status == f {
			c.status = to
			now := time.Now().UTC()
			c.endTime = &now

			if errMsg != "" {
				c.errMsg = errMsg
			}

			return true
		}
	}

	return false
}

// BeginNode records a running result for the node and returns its start time.
// The caller finalizes the node through CompleteNode or FailNode.
func (c *ExecutionContext) BeginNode(nodeID string, input map[string]any) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now().UTC()
	c.nodeResults[nodeID] = &NodeExecutionResult{
		NodeID:    nodeID,
		Status:    NodeStatusRunning,
		StartTime: start,
		Input:     input,
	}

	return start
}

// CompleteNode finalizes a running node with its output. A node already in a
// terminal state is left untouched so results never regress.
func (c *ExecutionContext) CompleteNode(nodeID string, output, metadata map[string]any) *NodeExecutionResult {
	return c.finishNode(nodeID, NodeStatusCompleted, output, metadata, "")
}

// FailNode finalizes a running node with an error.
func (c *ExecutionContext) FailNode(nodeID string, errMsg string) *NodeExecutionResult {
	return c.finishNode(nodeID, NodeStatusFailed, nil, nil, errMsg)
}

func (c *ExecutionContext) finishNode(
	nodeID string,
	status NodeExecutionStatus,
	output, metadata map[string]any,
	errMsg string,
) *NodeExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.nodeResults[nodeID]
	if !ok || result.Status.Terminal() {
		return result
	}

	now := time.Now().UTC()
	result.Status = status
	result.EndTime = &now
	result.Output = output
	result.Metadata = metadata
	result.Error = errMsg
	result.DurationMs = now.Sub(result.StartTime).Milliseconds()

	return result
}

// NodeResult returns a copy of the node's result, or nil when the node has
// not been dispatched yet.
func (c *ExecutionContext) NodeResult(nodeID string) *NodeExecutionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.nodeResults[nodeID]
	if !ok {
		return nil
	}

	copied := *result

	return &copied
}

// NodeCompleted reports whether the node finished with a completed result.
func (c *ExecutionContext) NodeCompleted(nodeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.nodeResults[nodeID]

	return ok && result.Status == NodeStatusCompleted
}

// NodeResults returns a copy of all node results keyed by node id.
func (c *ExecutionContext) NodeResults() map[string]NodeExecutionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	results := make(map[string]NodeExecutionResult, len(c.nodeResults))
	for id, result := range c.nodeResults {
		results[id] = *result
	}

	return results
}

// NodesExecuted returns the number of nodes with a recorded result.
func (c *ExecutionContext) NodesExecuted() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.nodeResults)
}

// ExecutionSnapshot is an immutable, JSON-friendly view of an execution,
// used for API responses and event payloads.
type ExecutionSnapshot struct {
	ExecutionID string                         `json:"execution_id"`
	WorkflowID  string                         `json:"workflow_id"`
	Status      ExecutionStatus                `json:"status"`
	Variables   map[string]any                 `json:"variables,omitempty"`
	StartTime   time.Time                      `json:"start_time"`
	EndTime     *time.Time                     `json:"end_time,omitempty"`
	Error       string                         `json:"error,omitempty"`
	NodeResults map[string]NodeExecutionResult `json:"node_results"`
}

// Snapshot returns a consistent point-in-time view of the execution.
func (c *ExecutionContext) Snapshot() *ExecutionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vars := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		vars[k] = v
	}

	results := make(map[string]NodeExecutionResult, len(c.nodeResults))
	for id, result := range c.nodeResults {
		results[id] = *result
	}

	return &ExecutionSnapshot{
		ExecutionID: c.ID,
		WorkflowID:  c.WorkflowID,
		Status:      c.status,
		Variables:   vars,
		StartTime:   c.StartTime,
		EndTime:     c.endTime,
		Error:       c.errMsg,
		NodeResults: results,
	}
}
