package engine

import (
	"context"
	"log/slog"

	"github.com/loomctl/loom/pkg/graph"
	"github.com/loomctl/loom/pkg/models"
)

// dispatcher drives one execution: a queue of not-yet-dispatched node ids in
// topological order, and a running set bounded by MaxConcurrentNodes.
type dispatcher struct {
	engine    *Engine
	workflow  *models.WorkflowDefinition
	graph     *graph.Graph
	execution *models.ExecutionContext
	wake      chan struct{}
	logger    *slog.Logger
}

// loop admits ready nodes until the queue drains, the run is aborted, or the
// remainder is permanently blocked. It blocks on node completions and
// lifecycle signals instead of polling; readiness is recomputed on every
// wakeup, so a node is never admitted before all its parents completed.
func (d *dispatcher) loop(ctx context.Context) {
	queue := d.graph.Order()
	running := make(map[string]struct{})
	finished := make(chan string, len(queue))

	// once the run context dies the execution is cancelled and the select
	// stops watching it, letting in-flight nodes drain
	ctxDone := ctx.Done()

	for {
		status := d.execution.Status()

		admitted := 0
		if status == models.ExecutionStatusRunning {
			queue, admitted = d.admit(ctx, queue, running, finished)
		}

		if len(running) == 0 {
			if status.Terminal() {
				return
			}

			if status == models.ExecutionStatusRunning {
				if len(queue) == 0 {
					return
				}

				if admitted == 0 {
					// remaining nodes can never become ready: an upstream
					// permanently failed or was skipped
					d.logger.Warn("Remaining nodes are permanently blocked", "blocked", len(queue))

					return
				}
			}
		}

		select {
		case nodeID := <-finished:
			delete(running, nodeID)
		case <-d.wake:
		case <-ctxDone:
			d.engine.cancelExecution(ctx, d.execution)

			ctxDone = nil
		}
	}
}

// admit selects ready nodes from the queue, up to the free concurrency slots,
// and dispatches each in its own goroutine. Returns the unadmitted remainder.
func (d *dispatcher) admit(
	ctx context.Context,
	queue []string,
	running map[string]struct{},
	finished chan<- string,
) ([]string, int) {
	admitted := 0
	remainder := make([]string, 0, len(queue))

	for _, nodeID := range queue {
		if len(running) >= d.engine.config.MaxConcurrentNodes || !d.ready(nodeID) {
			remainder = append(remainder, nodeID)

			continue
		}

		node := d.workflow.Node(nodeID)
		running[nodeID] = struct{}{}
		admitted++

		go func(node *models.WorkflowNode) {
			defer func() { finished <- node.ID }()

			d.runNode(ctx, node)
		}(node)
	}

	return remainder, admitted
}

// ready reports whether every upstream node has a completed result. A failed
// or skipped parent never unlocks its dependents.
func (d *dispatcher) ready(nodeID string) bool {
	for _, parent := range d.graph.Parents(nodeID) {
		if !d.execution.NodeCompleted(parent) {
			return false
		}
	}

	return true
}
