// Package scheduler runs stored workflows on cron schedules. A workflow opts
// in by setting a standard cron expression in variables["schedule"].
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/models"
	"github.com/loomctl/loom/pkg/persistence"
)

const scheduleVariable = "schedule"

// Scheduler loads scheduled workflows from persistence and triggers
// asynchronous engine runs on their cron cadence.
type Scheduler struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	cron        *cron.Cron
	entries     map[string]cron.EntryID
	logger      *slog.Logger
}

func NewScheduler(eng *engine.Engine, store persistence.Persistence, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:      eng,
		persistence: store,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		entries: make(map[string]cron.EntryID),
		logger:  logger.With("module", "scheduler"),
	}
}

// Start registers every stored workflow that carries a schedule variable and
// begins the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := s.Add(workflow); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", "scheduled_workflows", len(s.entries))

	return nil
}

// Add registers one workflow's schedule. Workflows without a schedule
// variable are ignored.
func (s *Scheduler) Add(workflow *models.WorkflowDefinition) error {
	expr, ok := workflow.Variables[scheduleVariable].(string)
	if !ok || expr == "" {
		return nil
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression for workflow %s: %w", workflow.ID, err)
	}

	id, err := s.cron.AddFunc(expr, func() { s.run(workflow) })
	if err != nil {
		return fmt.Errorf("failed to add cron job for workflow %s: %w", workflow.ID, err)
	}

	s.entries[workflow.ID] = id
	s.logger.Info("Scheduled workflow", "workflow_id", workflow.ID, "cron", expr)

	return nil
}

// Remove drops a workflow's schedule if one is registered.
func (s *Scheduler) Remove(workflowID string) {
	if id, ok := s.entries[workflowID]; ok {
		s.cron.Remove(id)
		delete(s.entries, workflowID)
	}
}

// Entries returns the ids of the workflows currently scheduled.
func (s *Scheduler) Entries() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}

	return ids
}

func (s *Scheduler) run(workflow *models.WorkflowDefinition) {
	executionID, err := s.engine.ExecuteAsync(context.Background(), workflow, nil)
	if err != nil {
		s.logger.Error("Failed to start scheduled execution", "workflow_id", workflow.ID, "error", err)

		return
	}

	s.logger.Info("Scheduled execution started", "workflow_id", workflow.ID, "execution_id", executionID)
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping scheduler")

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
