package eventbus

//go:generate mockgen -source=eventbus.go -destination=../../mocks/mock_eventbus.go -package=mocks

import (
	"context"

	"github.com/alanyang/portfolio-api/internal/domain/event"
)

type Handler func(ctx context.Context, e event.Event)

type Subscription interface {
	Unsubscribe()
}

// EventBus fans document change events out to subscribers.
// Memory, Postgres and RabbitMQ implementations are interchangeable.
type EventBus interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, ch event.Channel, handler Handler) (Subscription, error)
	Close() error
}
