package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alanyang/portfolio-api/internal/adapter/memory"
	"github.com/alanyang/portfolio-api/internal/domain/event"
)

// EventRecorder is a test double for an event bus subscriber. It records every
// event with a mutex so it is safe for concurrent use.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

// Handle matches port/eventbus.Handler.
func (r *EventRecorder) Handle(_ context.Context, e event.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *EventRecorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// WaitFor blocks until at least n events were recorded or timeout elapses,
// and returns what was recorded.
func (r *EventRecorder) WaitFor(n int, timeout time.Duration) []event.Event {
	deadline := time.After(timeout)
	for {
		if got := r.Events(); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Events()
		}
	}
}

// Reset clears all recorded events.
func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// NewMemoryEventBus returns an in-process bus closed when the test ends.
func NewMemoryEventBus(t *testing.T) *memory.EventBus {
	t.Helper()
	bus := memory.NewEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}
