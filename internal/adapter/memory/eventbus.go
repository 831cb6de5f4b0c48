package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyang/portfolio-api/internal/domain/event"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"
)

var _ porteventbus.EventBus = (*EventBus)(nil)

const subscriberBuffer = 64

// EventBus delivers events in-process. Each subscription has its own
// goroutine and buffer, so a slow handler never blocks Publish; events that
// overflow the buffer are dropped.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[event.Channel]map[*subscription]struct{}
	closed bool
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[event.Channel]map[*subscription]struct{})}
}

func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for sub := range eb.subs[e.Channel()] {
		select {
		case sub.events <- e:
		default:
			slog.WarnContext(ctx, "event dropped, subscriber buffer full",
				"channel", e.Channel(), "type", e.Type)
		}
	}
	return nil
}

func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:     eb,
		channel: ch,
		events:  make(chan event.Event, subscriberBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		cancel()
		close(sub.done)
		return sub, nil
	}
	if eb.subs[ch] == nil {
		eb.subs[ch] = make(map[*subscription]struct{})
	}
	eb.subs[ch][sub] = struct{}{}
	eb.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case e := <-sub.events:
				handler(subCtx, e)
			}
		}
	}()

	return sub, nil
}

// Close stops every subscription.
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	var all []*subscription
	for _, subs := range eb.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	eb.subs = make(map[event.Channel]map[*subscription]struct{})
	eb.closed = true
	eb.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (eb *EventBus) remove(sub *subscription) {
	eb.mu.Lock()
	delete(eb.subs[sub.channel], sub)
	eb.mu.Unlock()
}

type subscription struct {
	bus     *EventBus
	channel event.Channel
	events  chan event.Event
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s)
	s.stop()
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
