package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/eventbus"
	"github.com/loomctl/loom/pkg/events"
	"github.com/loomctl/loom/pkg/graph"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/registry"
	"github.com/loomctl/loom/pkg/testutil"
)

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

func newTestEngine(t *testing.T, config engine.Config, executor *testutil.StubExecutor) (*engine.Engine, *recordingPublisher) {
	t.Helper()

	reg := registry.NewRegistry(testutil.Logger())
	if executor != nil {
		reg.Register(executor)
	}

	publisher := &recordingPublisher{}

	return engine.NewEngine(config, reg, publisher, testutil.Logger()), publisher
}

// counterOutput emits an incrementing value so output propagation is visible.
func counterOutput() *testutil.StubExecutor {
	return &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, node *models.WorkflowNode, execution *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			value := 0

			if result := execution.NodeResult(node.ID); result != nil {
				for _, parentOutput := range result.Input {
					if out, ok := parentOutput.(map[string]any); ok {
						if v, ok := out["value"].(int); ok && v+1 > value {
							value = v + 1
						}
					}
				}
			}

			return &models.NodeExecutionResult{Output: map[string]any{"value": value}}, nil
		},
	}
}

func TestExecuteLinearChainPropagatesOutputs(t *testing.T) {
	eng, publisher := newTestEngine(t, engine.Config{}, counterOutput())

	workflow := testutil.Workflow("wf-linear",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
			testutil.Node("c", "task", nil),
		},
		testutil.Chain("a", "b", "c"),
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
	assert.Equal(t, 3, execution.NodesExecuted())
	require.NotNil(t, execution.EndTime())

	for id, want := range map[string]int{"a": 0, "b": 1, "c": 2} {
		result := execution.NodeResult(id)
		require.NotNil(t, result, id)
		assert.Equal(t, models.NodeStatusCompleted, result.Status)
		assert.Equal(t, want, result.Output["value"], id)
	}

	assert.Equal(t, []events.EventType{
		events.ExecutionStartedEvent,
		events.NodeStartedEvent, events.NodeCompletedEvent,
		events.NodeStartedEvent, events.NodeCompletedEvent,
		events.NodeStartedEvent, events.NodeCompletedEvent,
		events.ExecutionCompletedEvent,
	}, publisher.types())
}

func TestExecuteDiamondSerializedUnderConcurrencyOne(t *testing.T) {
	var inFlight, peak atomic.Int32

	var mu sync.Mutex

	var order []string

	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, node *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				observed := peak.Load()
				if current <= observed || peak.CompareAndSwap(observed, current) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			order = append(order, node.ID)
			mu.Unlock()

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, _ := newTestEngine(t, engine.Config{MaxConcurrentNodes: 1}, executor)

	workflow := testutil.Workflow("wf-diamond",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
			testutil.Node("c", "task", nil),
			testutil.Node("d", "task", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "b"),
			testutil.Edge("a", "c"),
			testutil.Edge("b", "d"),
			testutil.Edge("c", "d"),
		},
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
	assert.EqualValues(t, 1, peak.Load())

	require.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])
}

func TestExecuteConcurrencyBoundHolds(t *testing.T) {
	var inFlight, peak atomic.Int32

	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, _ *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)

			for {
				observed := peak.Load()
				if current <= observed || peak.CompareAndSwap(observed, current) {
					break
				}
			}

			time.Sleep(10 * time.Millisecond)

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, _ := newTestEngine(t, engine.Config{MaxConcurrentNodes: 2}, executor)

	nodes := make([]*models.WorkflowNode, 0, 6)
	for _, id := range []string{"n1", "n2", "n3", "n4", "n5", "n6"} {
		nodes = append(nodes, testutil.Node(id, "task", nil))
	}

	execution, err := eng.Execute(context.Background(), testutil.Workflow("wf-parallel", nodes, nil), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
	assert.Equal(t, 6, execution.NodesExecuted())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecuteStopsOnNodeFailure(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, node *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			if node.ID == "b" {
				return nil, errors.New("boom")
			}

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, publisher := newTestEngine(t, engine.Config{MaxConcurrentNodes: 1}, executor)

	workflow := testutil.Workflow("wf-fail",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
			testutil.Node("c", "task", nil),
			testutil.Node("d", "task", nil),
		},
		testutil.Chain("a", "b", "c", "d"),
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status())
	assert.Contains(t, execution.Error(), "boom")

	require.NotNil(t, execution.NodeResult("a"))
	assert.Equal(t, models.NodeStatusCompleted, execution.NodeResult("a").Status)

	failed := execution.NodeResult("b")
	require.NotNil(t, failed)
	assert.Equal(t, models.NodeStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "boom")

	assert.Nil(t, execution.NodeResult("c"))
	assert.Nil(t, execution.NodeResult("d"))

	types := publisher.types()
	assert.Contains(t, types, events.NodeFailedEvent)
	assert.Equal(t, events.ExecutionFailedEvent, types[len(types)-1])
}

func TestExecuteContinuesPastNonAbortingFailure(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, node *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			if node.ID == "b" {
				return nil, errors.New("soft failure")
			}

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, _ := newTestEngine(t, engine.Config{}, executor)

	// b fails but is marked non-aborting; c depends on b and stays blocked,
	// island is independent and still runs
	workflow := testutil.Workflow("wf-soft",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", map[string]any{"stop_on_error": false}),
			testutil.Node("c", "task", nil),
			testutil.Node("island", "task", nil),
		},
		testutil.Chain("a", "b", "c"),
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
	assert.Equal(t, models.NodeStatusFailed, execution.NodeResult("b").Status)
	assert.Nil(t, execution.NodeResult("c"))
	assert.Equal(t, models.NodeStatusCompleted, execution.NodeResult("island").Status)
}

func TestExecuteNodeTimeout(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(ctx context.Context, _ *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			timer := time.NewTimer(200 * time.Millisecond)
			defer timer.Stop()

			select {
			case <-timer.C:
				return &models.NodeExecutionResult{Output: map[string]any{}}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}

	eng, _ := newTestEngine(t, engine.Config{NodeTimeout: 50 * time.Millisecond}, executor)

	workflow := testutil.Workflow("wf-timeout",
		[]*models.WorkflowNode{testutil.Node("slow", "task", nil)},
		nil,
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status())

	result := execution.NodeResult("slow")
	require.NotNil(t, result)
	assert.Equal(t, models.NodeStatusFailed, result.Status)
	assert.Contains(t, result.Error, "exceeded")
}

func TestCancelStopsAdmission(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})

	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(ctx context.Context, node *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			started <- node.ID

			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, publisher := newTestEngine(t, engine.Config{MaxConcurrentNodes: 1}, executor)

	workflow := testutil.Workflow("wf-cancel",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
		},
		testutil.Chain("a", "b"),
	)

	done := make(chan *models.ExecutionContext, 1)

	go func() {
		execution, err := eng.Execute(context.Background(), workflow, nil)
		if err == nil {
			done <- execution
		}

		close(done)
	}()

	require.Equal(t, "a", <-started)

	active := eng.ActiveExecutions()
	require.Len(t, active, 1)

	require.NoError(t, eng.Cancel(context.Background(), active[0].ID))
	close(release)

	execution, ok := <-done
	require.True(t, ok)

	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status())
	require.NotNil(t, execution.EndTime())

	// a was in flight and drained; b was never admitted
	assert.Nil(t, execution.NodeResult("b"))
	assert.Contains(t, publisher.types(), events.ExecutionCancelledEvent)

	// the terminal run left the active table
	assert.Nil(t, eng.ExecutionStatus(execution.ID))
}

func TestCancelImmediatelyAfterExecuteAsync(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, _ *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			time.Sleep(5 * time.Millisecond)

			return &models.NodeExecutionResult{}, nil
		},
	}

	eng, publisher := newTestEngine(t, engine.Config{}, executor)

	workflow := testutil.Workflow("wf-early-cancel",
		[]*models.WorkflowNode{testutil.Node("a", "task", nil)},
		nil,
	)

	const runs = 50

	for range runs {
		executionID, err := eng.ExecuteAsync(context.Background(), workflow, nil)
		require.NoError(t, err)

		// cancelling right after scheduling must win even when the run
		// goroutine has not reached its first iteration yet
		require.NoError(t, eng.Cancel(context.Background(), executionID))

		require.Eventually(t, func() bool {
			return eng.ExecutionStatus(executionID) == nil
		}, time.Second, time.Millisecond)
	}

	cancelled, completed := 0, 0

	for _, eventType := range publisher.types() {
		switch eventType {
		case events.ExecutionCancelledEvent:
			cancelled++
		case events.ExecutionCompletedEvent, events.ExecutionFailedEvent:
			completed++
		}
	}

	assert.Equal(t, runs, cancelled)
	assert.Zero(t, completed)
}

func TestPauseBlocksAdmissionUntilResume(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})

	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, node *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			if node.ID == "a" {
				started <- node.ID
				<-release
			}

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, publisher := newTestEngine(t, engine.Config{}, executor)

	workflow := testutil.Workflow("wf-pause",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
		},
		testutil.Chain("a", "b"),
	)

	done := make(chan *models.ExecutionContext, 1)

	go func() {
		execution, err := eng.Execute(context.Background(), workflow, nil)
		if err == nil {
			done <- execution
		}

		close(done)
	}()

	require.Equal(t, "a", <-started)

	active := eng.ActiveExecutions()
	require.Len(t, active, 1)
	executionID := active[0].ID

	require.NoError(t, eng.Pause(context.Background(), executionID))
	close(release)

	// a drains, but b must not be admitted while paused
	require.Eventually(t, func() bool {
		status := eng.ExecutionStatus(executionID)

		return status != nil && status.NodeCompleted("a")
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	paused := eng.ExecutionStatus(executionID)
	require.NotNil(t, paused)
	assert.Equal(t, models.ExecutionStatusPaused, paused.Status())
	assert.Nil(t, paused.NodeResult("b"))

	require.NoError(t, eng.Resume(context.Background(), executionID))

	execution, ok := <-done
	require.True(t, ok)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
	assert.Equal(t, models.NodeStatusCompleted, execution.NodeResult("b").Status)

	types := publisher.types()
	assert.Contains(t, types, events.ExecutionPausedEvent)
	assert.Contains(t, types, events.ExecutionResumedEvent)
}

func TestExecuteRejectsInvalidWorkflow(t *testing.T) {
	eng, _ := newTestEngine(t, engine.Config{}, counterOutput())

	_, err := eng.Execute(context.Background(), &models.WorkflowDefinition{ID: "wf-empty", Name: "empty"}, nil)
	require.ErrorIs(t, err, engine.ErrInvalidWorkflow)
}

func TestExecuteRejectsCyclicWorkflow(t *testing.T) {
	eng, _ := newTestEngine(t, engine.Config{}, counterOutput())

	workflow := testutil.Workflow("wf-cycle",
		[]*models.WorkflowNode{
			testutil.Node("a", "task", nil),
			testutil.Node("b", "task", nil),
		},
		[]*models.WorkflowEdge{
			testutil.Edge("a", "b"),
			testutil.Edge("b", "a"),
		},
	)

	_, err := eng.Execute(context.Background(), workflow, nil)
	require.ErrorIs(t, err, graph.ErrCycleDetected)
	assert.Empty(t, eng.ActiveExecutions())
}

func TestExecuteFailsOnUnregisteredNodeType(t *testing.T) {
	eng, _ := newTestEngine(t, engine.Config{}, counterOutput())

	workflow := testutil.Workflow("wf-unknown",
		[]*models.WorkflowNode{testutil.Node("x", "does-not-exist", nil)},
		nil,
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status())
	assert.Contains(t, execution.Error(), "not registered")
}

func TestExecuteFailsOnInvalidNodeConfig(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ValidateFunc: func(_ *models.WorkflowNode) error {
			return errors.New("missing required field")
		},
	}

	eng, _ := newTestEngine(t, engine.Config{}, executor)

	workflow := testutil.Workflow("wf-badconfig",
		[]*models.WorkflowNode{testutil.Node("x", "task", nil)},
		nil,
	)

	execution, err := eng.Execute(context.Background(), workflow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status())
	assert.Contains(t, execution.Error(), "missing required field")
}

func TestExecuteEnforcesConfigSchema(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
	}

	eng, _ := newTestEngine(t, engine.Config{}, executor)

	bad := testutil.Workflow("wf-schema-bad",
		[]*models.WorkflowNode{testutil.Node("x", "task", nil)},
		nil,
	)

	execution, err := eng.Execute(context.Background(), bad, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status())
	assert.Contains(t, execution.Error(), "schema")

	good := testutil.Workflow("wf-schema-good",
		[]*models.WorkflowNode{testutil.Node("x", "task", map[string]any{"message": "hi"})},
		nil,
	)

	execution, err = eng.Execute(context.Background(), good, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status())
}

func TestExecuteVariableOverrides(t *testing.T) {
	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, _ *models.WorkflowNode, execution *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			env, _ := execution.Variable("env")
			region, _ := execution.Variable("region")

			return &models.NodeExecutionResult{Output: map[string]any{"env": env, "region": region}}, nil
		},
	}

	eng, _ := newTestEngine(t, engine.Config{}, executor)

	workflow := testutil.Workflow("wf-vars",
		[]*models.WorkflowNode{testutil.Node("a", "task", nil)},
		nil,
	)
	workflow.Variables = map[string]any{"env": "default", "region": "eu"}

	execution, err := eng.Execute(context.Background(), workflow, map[string]any{"env": "override"})
	require.NoError(t, err)

	result := execution.NodeResult("a")
	require.NotNil(t, result)
	assert.Equal(t, "override", result.Output["env"])
	assert.Equal(t, "eu", result.Output["region"])
}

func TestExecuteAsyncReturnsExecutionID(t *testing.T) {
	release := make(chan struct{})

	executor := &testutil.StubExecutor{
		Type: "task",
		ExecuteFunc: func(_ context.Context, _ *models.WorkflowNode, _ *models.ExecutionContext) (*models.NodeExecutionResult, error) {
			<-release

			return &models.NodeExecutionResult{Output: map[string]any{}}, nil
		},
	}

	eng, _ := newTestEngine(t, engine.Config{}, executor)

	workflow := testutil.Workflow("wf-async",
		[]*models.WorkflowNode{testutil.Node("a", "task", nil)},
		nil,
	)

	executionID, err := eng.ExecuteAsync(context.Background(), workflow, nil)
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	status := eng.ExecutionStatus(executionID)
	require.NotNil(t, status)

	close(release)

	require.Eventually(t, func() bool {
		return eng.ExecutionStatus(executionID) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestCancelUnknownExecution(t *testing.T) {
	eng, _ := newTestEngine(t, engine.Config{}, nil)

	err := eng.Cancel(context.Background(), "exec-missing")
	require.ErrorIs(t, err, engine.ErrExecutionNotFound)
}

func TestStatsReportsRegisteredExecutors(t *testing.T) {
	eng, _ := newTestEngine(t, engine.Config{MaxConcurrentNodes: 3}, counterOutput())

	stats := eng.Stats()
	assert.Equal(t, 0, stats.ActiveExecutions)
	assert.Equal(t, 1, stats.RegisteredExecutors)
	assert.Equal(t, 3, stats.Config.MaxConcurrentNodes)
}
