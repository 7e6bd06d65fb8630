// Package events defines event types and structures for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomctl/loom/pkg/models"
)

type EventType string

// Topic carries all engine events.
const Topic = "loom.executions"

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution-started"
	ExecutionPausedEvent    EventType = "execution-paused"
	ExecutionResumedEvent   EventType = "execution-resumed"
	ExecutionCancelledEvent EventType = "execution-cancelled"
	ExecutionCompletedEvent EventType = "execution-completed"
	ExecutionFailedEvent    EventType = "execution-failed"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node-started"
	NodeCompletedEvent EventType = "node-completed"
	NodeFailedEvent    EventType = "node-failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

type ExecutionStarted struct {
	BaseEvent

	WorkflowName string                    `json:"workflow_name"`
	Context      *models.ExecutionSnapshot `json:"context,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionPaused struct {
	BaseEvent

	Context *models.ExecutionSnapshot `json:"context,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	Context *models.ExecutionSnapshot `json:"context,omitempty"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	Context       *models.ExecutionSnapshot `json:"context,omitempty"`
	DurationMs    int64                     `json:"duration_ms"`
	NodesExecuted int                       `json:"nodes_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Context       *models.ExecutionSnapshot `json:"context,omitempty"`
	DurationMs    int64                     `json:"duration_ms"`
	NodesExecuted int                       `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Context       *models.ExecutionSnapshot `json:"context,omitempty"`
	Error         string                    `json:"error"`
	DurationMs    int64                     `json:"duration_ms"`
	NodesExecuted int                       `json:"nodes_executed"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type NodeStarted struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID string                      `json:"node_id"`
	Result *models.NodeExecutionResult `json:"result,omitempty"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID string                      `json:"node_id"`
	Error  string                      `json:"error"`
	Result *models.NodeExecutionResult `json:"result,omitempty"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}
