// Package main provides the Loom API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/loomctl/loom/pkg/engine"
	"github.com/loomctl/loom/pkg/persistence"
	"github.com/loomctl/loom/pkg/web"
)

type API struct {
	logger      *slog.Logger
	engine      *engine.Engine
	persistence persistence.Persistence
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	eng *engine.Engine,
	store persistence.Persistence,
) *API {
	return &API{
		logger:      logger,
		engine:      eng,
		persistence: store,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.persistence, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Loom API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.Get("/node-types", handlers.GetNodeTypes)
	app.Get("/stats", handlers.GetStats)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
