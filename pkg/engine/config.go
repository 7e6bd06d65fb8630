package engine

import "time"

const (
	DefaultMaxConcurrentNodes = 4
	DefaultNodeTimeout        = 30 * time.Second
)

// Config bounds one engine instance. The zero value is usable: defaults are
// applied when the engine is constructed.
type Config struct {
	// MaxConcurrentNodes caps how many nodes of one execution run at once.
	MaxConcurrentNodes int `json:"max_concurrent_nodes"`

	// NodeTimeout is the per-node execution deadline. A node exceeding it
	// fails with ErrExecutionTimeout; the run-level policy decides whether
	// that aborts the execution.
	NodeTimeout time.Duration `json:"node_timeout"`
}

func (c Config) normalized() Config {
	if c.MaxConcurrentNodes <= 0 {
		c.MaxConcurrentNodes = DefaultMaxConcurrentNodes
	}

	if c.NodeTimeout <= 0 {
		c.NodeTimeout = DefaultNodeTimeout
	}

	return c
}
