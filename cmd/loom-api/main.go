package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/loomctl/loom/pkg/cmd"
	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/log"
	"github.com/loomctl/loom/pkg/otelhelper"
	"github.com/loomctl/loom/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "loom-api",
		Usage:                 "Create, manage and execute workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Workflow store URL (file://<dir> or redis://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-nodes",
				Usage:   "Maximum number of nodes running at once per execution",
				Value:   engine.DefaultMaxConcurrentNodes,
				Sources: cli.EnvVars("MAX_CONCURRENT_NODES"),
			},
			&cli.DurationFlag{
				Name:    "node-timeout",
				Usage:   "Per-node execution timeout",
				Value:   engine.DefaultNodeTimeout,
				Sources: cli.EnvVars("NODE_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing (exports OTLP over HTTP)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Loom API")

			registry := cmd.NewRegistry(logger)
			store := cmd.NewPersistence(command.String("database-url"))

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var engineOpts []engine.Option

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "loom-api")
				if err != nil {
					return err
				}

				engineOpts = append(engineOpts, engine.WithTracer(tracer))
			}

			eng := engine.NewEngine(engine.Config{
				MaxConcurrentNodes: command.Int("max-concurrent-nodes"),
				NodeTimeout:        command.Duration("node-timeout"),
			}, registry, eventBus, logger, engineOpts...)

			sched := scheduler.NewScheduler(eng, store, logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}

			defer func() {
				if err := sched.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
				}
			}()

			api := NewAPI(logger, eng, store)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
