// Package eventbus provides event-driven communication between the engine
// and decoupled observers such as monitoring and logging layers.
package eventbus

import (
	"context"

	"github.com/loomctl/loom/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher is the engine-facing half of the bus. The scheduler only
// ever publishes; it never consumes its own events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
