// Package engine implements the workflow execution engine: a dependency-graph
// scheduler that runs typed nodes in topological order under a concurrency
// bound, with cooperative pause/resume/cancel, per-node timeouts and a
// configurable failure-propagation policy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/loomctl/loom/pkg/eventbus"
	"github.com/loomctl/loom/pkg/events"
	"github.com/loomctl/loom/pkg/graph"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/otelhelper"
	"github.com/loomctl/loom/pkg/protocol"
	"github.com/loomctl/loom/pkg/registry"
)

// Engine owns the active-executions table and drives one dispatcher loop per
// Execute call. Node business logic enters only through the registry's
// NodeExecutor seam.
type Engine struct {
	config    Config
	logger    *slog.Logger
	registry  *registry.Registry
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	validate  *validator.Validate

	mu     sync.RWMutex
	active map[string]*activeExecution
}

type activeExecution struct {
	execution *models.ExecutionContext
	wake      chan struct{}
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithTracer attaches an OpenTelemetry tracer; without it spans are no-ops.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func NewEngine(
	config Config,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		config:    config.normalized(),
		logger:    logger.With("module", "engine"),
		registry:  reg,
		publisher: publisher,
		tracer:    noop.NewTracerProvider().Tracer("loom"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		active:    make(map[string]*activeExecution),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegisterExecutor adds a node executor to the engine's registry.
func (e *Engine) RegisterExecutor(executor protocol.NodeExecutor) {
	e.registry.Register(executor)
}

// Registry exposes the executor registry for registration and introspection.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Execute runs a workflow to a terminal state and returns its final context.
// Structural failures (invalid definition, cyclic graph) reject before any
// node runs; per-run failures resolve normally with a failed or cancelled
// context. Callers wanting the asynchronous shape use ExecuteAsync or run
// Execute in a goroutine.
//
// Only a completed upstream result unlocks a dependent: nodes downstream of
// a non-aborting failed node stay permanently blocked and end the run with
// no result of their own.
func (e *Engine) Execute(
	ctx context.Context,
	workflow *models.WorkflowDefinition,
	variables map[string]any,
) (*models.ExecutionContext, error) {
	d, err := e.prepare(workflow, variables)
	if err != nil {
		return nil, err
	}

	return e.run(ctx, d), nil
}

// ExecuteAsync validates and schedules a run, returning its execution id
// immediately. Progress is observable through ExecutionStatus and the event
// stream; the context is dropped from the active table once terminal.
func (e *Engine) ExecuteAsync(
	ctx context.Context,
	workflow *models.WorkflowDefinition,
	variables map[string]any,
) (string, error) {
	d, err := e.prepare(workflow, variables)
	if err != nil {
		return "", err
	}

	// the run outlives the caller (for the API path, the request); keep the
	// caller's values but not its cancellation
	go e.run(context.WithoutCancel(ctx), d)

	return d.execution.ID, nil
}

func (e *Engine) prepare(workflow *models.WorkflowDefinition, variables map[string]any) (*dispatcher, error) {
	if err := e.validate.Struct(workflow); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}

	g, err := graph.Build(workflow)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any, len(workflow.Variables)+len(variables))
	for k, v := range workflow.Variables {
		vars[k] = v
	}

	for k, v := range variables {
		vars[k] = v
	}

	execution := models.NewExecutionContext(workflow.ID, "exec-"+uuid.New().String(), vars)

	entry := &activeExecution{execution: execution, wake: make(chan struct{}, 1)}

	e.mu.Lock()
	e.active[execution.ID] = entry
	e.mu.Unlock()

	return &dispatcher{
		engine:    e,
		workflow:  workflow,
		graph:     g,
		execution: execution,
		wake:      entry.wake,
		logger: e.logger.With(
			"workflow_id", workflow.ID,
			"execution_id", execution.ID,
		),
	}, nil
}

func (e *Engine) run(ctx context.Context, d *dispatcher) *models.ExecutionContext {
	execution := d.execution

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	)
	defer span.End()
	defer e.unregister(execution.ID)

	if !execution.Begin() {
		// cancelled between scheduling and the first iteration; the cancel
		// already stamped the end time and published execution-cancelled
		d.logger.Info("Execution cancelled before start")

		return execution
	}

	d.logger.Info("Execution started", "nodes", len(d.workflow.Nodes))
	e.publish(ctx, events.ExecutionStarted{
		BaseEvent:    events.NewBaseEvent(events.ExecutionStartedEvent, execution.WorkflowID, execution.ID),
		WorkflowName: d.workflow.Name,
		Context:      execution.Snapshot(),
	})

	d.loop(ctx)

	switch execution.Status() {
	case models.ExecutionStatusRunning:
		// Complete loses to a concurrent cancel; that cancel already
		// published its own terminal event
		if execution.Complete() {
			d.logger.Info("Execution completed", "nodes_executed", execution.NodesExecuted())
			e.publish(ctx, events.ExecutionCompleted{
				BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID, execution.ID),
				Context:       execution.Snapshot(),
				DurationMs:    durationMs(execution),
				NodesExecuted: execution.NodesExecuted(),
			})
		}
	case models.ExecutionStatusFailed:
		d.logger.Error("Execution failed", "error", execution.Error())
		otelhelper.SetError(span, fmt.Errorf("%s", execution.Error()))
		e.publish(ctx, events.ExecutionFailed{
			BaseEvent:     events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID, execution.ID),
			Context:       execution.Snapshot(),
			Error:         execution.Error(),
			DurationMs:    durationMs(execution),
			NodesExecuted: execution.NodesExecuted(),
		})
	case models.ExecutionStatusCancelled:
		// execution-cancelled was published when the flag flipped
		d.logger.Info("Execution cancelled", "nodes_executed", execution.NodesExecuted())
	}

	return execution
}

// Pause requests a cooperative pause: the dispatcher stops admitting nodes at
// the next loop boundary; in-flight nodes run to completion.
func (e *Engine) Pause(ctx context.Context, executionID string) error {
	entry, err := e.lookup(executionID)
	if err != nil {
		return err
	}

	if entry.execution.Pause() {
		e.publish(ctx, events.ExecutionPaused{
			BaseEvent: events.NewBaseEvent(events.ExecutionPausedEvent, entry.execution.WorkflowID, executionID),
			Context:   entry.execution.Snapshot(),
		})
	}

	return nil
}

// Resume lifts a pause and wakes the dispatcher.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	entry, err := e.lookup(executionID)
	if err != nil {
		return err
	}

	if entry.execution.Resume() {
		e.publish(ctx, events.ExecutionResumed{
			BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, entry.execution.WorkflowID, executionID),
			Context:   entry.execution.Snapshot(),
		})
		e.signal(entry)
	}

	return nil
}

// Cancel flips a running or paused execution to cancelled. Cancellation is
// cooperative: nodes already admitted still reach a terminal result, no new
// node is admitted afterwards.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	entry, err := e.lookup(executionID)
	if err != nil {
		return err
	}

	e.cancelExecution(ctx, entry.execution)
	e.signal(entry)

	return nil
}

func (e *Engine) cancelExecution(ctx context.Context, execution *models.ExecutionContext) {
	if !execution.Cancel() {
		return
	}

	e.publish(ctx, events.ExecutionCancelled{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID, execution.ID),
		Context:       execution.Snapshot(),
		DurationMs:    durationMs(execution),
		NodesExecuted: execution.NodesExecuted(),
	})
}

// ExecutionStatus returns the live context for an execution, or nil once the
// run reached a terminal status and left the active table.
func (e *Engine) ExecutionStatus(executionID string) *models.ExecutionContext {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.active[executionID]
	if !ok {
		return nil
	}

	return entry.execution
}

// ActiveExecutions returns the contexts of all live runs.
func (e *Engine) ActiveExecutions() []*models.ExecutionContext {
	e.mu.RLock()
	defer e.mu.RUnlock()

	executions := make([]*models.ExecutionContext, 0, len(e.active))
	for _, entry := range e.active {
		executions = append(executions, entry.execution)
	}

	return executions
}

// Stats reports engine-level counters.
type Stats struct {
	ActiveExecutions    int    `json:"active_executions"`
	RegisteredExecutors int    `json:"registered_executors"`
	Config              Config `json:"config"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	active := len(e.active)
	e.mu.RUnlock()

	return Stats{
		ActiveExecutions:    active,
		RegisteredExecutors: e.registry.Len(),
		Config:              e.config,
	}
}

func (e *Engine) lookup(executionID string) (*activeExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.active[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return entry, nil
}

func (e *Engine) unregister(executionID string) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.mu.Unlock()
}

func (e *Engine) signal(entry *activeExecution) {
	select {
	case entry.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, events.Topic, event); err != nil {
		e.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func durationMs(execution *models.ExecutionContext) int64 {
	end := execution.EndTime()
	if end == nil {
		now := time.Now().UTC()
		end = &now
	}

	return end.Sub(execution.StartTime).Milliseconds()
}
