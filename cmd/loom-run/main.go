// Package main provides loom-run, a one-shot runner that executes a workflow
// definition from a JSON file and prints the final execution state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/loomctl/loom/pkg/cmd"
	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/log"
	"github.com/loomctl/loom/pkg/models"
)

func main() {
	logger := log.WithModule("run")

	command := &cli.Command{
		Name:                  "loom-run",
		Usage:                 "Execute a workflow definition file once and print the result",
		ArgsUsage:             "<workflow.json>",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "max-concurrent-nodes",
				Usage:   "Maximum number of nodes running at once",
				Value:   engine.DefaultMaxConcurrentNodes,
				Sources: cli.EnvVars("MAX_CONCURRENT_NODES"),
			},
			&cli.DurationFlag{
				Name:    "node-timeout",
				Usage:   "Per-node execution timeout",
				Value:   engine.DefaultNodeTimeout,
				Sources: cli.EnvVars("NODE_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("usage: %s <workflow.json>", command.Name)
			}

			workflow, err := loadWorkflow(path)
			if err != nil {
				return err
			}

			registry := cmd.NewRegistry(logger)
			eventBus := cmd.NewEventBus("gochannel", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			eng := engine.NewEngine(engine.Config{
				MaxConcurrentNodes: command.Int("max-concurrent-nodes"),
				NodeTimeout:        command.Duration("node-timeout"),
			}, registry, eventBus, logger)

			execution, err := eng.Execute(ctx, workflow, nil)
			if err != nil {
				return err
			}

			payload, err := json.MarshalIndent(execution.Snapshot(), "", "  ")
			if err != nil {
				return err
			}

			fmt.Println(string(payload))

			if execution.Status() != models.ExecutionStatusCompleted {
				return fmt.Errorf("execution finished with status %s", execution.Status())
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func loadWorkflow(path string) (*models.WorkflowDefinition, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var workflow models.WorkflowDefinition
	if err := json.Unmarshal(payload, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow file: %w", err)
	}

	return &workflow, nil
}
