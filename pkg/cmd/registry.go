// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/loomctl/loom/pkg/executors/delay"
	"github.com/loomctl/loom/pkg/executors/httprequest"
	logexecutor "github.com/loomctl/loom/pkg/executors/log"
	"github.com/loomctl/loom/pkg/executors/transform"
	"github.com/loomctl/loom/pkg/registry"
)

// NewRegistry builds a registry with the native node executors registered.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(httprequest.NewExecutor(logger))
	reg.Register(transform.NewExecutor(logger))
	reg.Register(logexecutor.NewExecutor(logger))
	reg.Register(delay.NewExecutor(logger))

	return reg
}
