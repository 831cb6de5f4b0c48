package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/portfolio-api/internal/domain/event"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"
)

var _ porteventbus.EventBus = (*EventBus)(nil)

// Delays between attempts to re-establish a lost LISTEN connection.
const (
	reconnectBackoff    = 100 * time.Millisecond
	maxReconnectBackoff = 5 * time.Second
)

// EventBus implements port/eventbus.EventBus with Postgres LISTEN/NOTIFY, so
// every instance sharing the database sees every change.
type EventBus struct {
	pool *pgxpool.Pool

	mu   sync.RWMutex
	subs map[event.Channel]map[*subscription]struct{}
}

func New(pool *pgxpool.Pool) *EventBus {
	return &EventBus{
		pool: pool,
		subs: make(map[event.Channel]map[*subscription]struct{}),
	}
}

// Publish sends an event via NOTIFY on the channel of its collection.
func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	channel := channelName(e.Channel())
	_, err = eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload))
	if err != nil {
		return fmt.Errorf("publishing event on channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe holds one pooled connection in LISTEN on ch and invokes handler
// for every notification until the subscription or ctx ends. A lost
// connection is replaced and LISTEN re-issued with growing backoff;
// notifications sent while no connection listens are missed.
func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	channel := channelName(ch)
	conn, err := eb.listen(ctx, channel)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		bus:     eb,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	eb.mu.Lock()
	if eb.subs[ch] == nil {
		eb.subs[ch] = make(map[*subscription]struct{})
	}
	eb.subs[ch][sub] = struct{}{}
	eb.mu.Unlock()

	go sub.run(subCtx, conn, channel, handler)

	return sub, nil
}

// Close stops every LISTEN loop and returns their connections to the pool.
// The pool itself belongs to the caller.
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	var all []*subscription
	for _, subs := range eb.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	eb.subs = make(map[event.Channel]map[*subscription]struct{})
	eb.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (eb *EventBus) listen(ctx context.Context, channel string) (*pgxpool.Conn, error) {
	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("executing LISTEN on channel %s: %w", channel, err)
	}
	return conn, nil
}

// channelName converts a domain Channel to a safe Postgres channel identifier.
func channelName(ch event.Channel) string {
	return "portfolio_" + string(ch)
}

type subscription struct {
	bus     *EventBus
	channel event.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *subscription) run(ctx context.Context, conn *pgxpool.Conn, channel string, handler porteventbus.Handler) {
	defer close(s.done)

	for conn != nil {
		err := receive(ctx, conn, channel, handler)
		if ctx.Err() != nil {
			conn.Exec(context.Background(), "UNLISTEN "+channel) //nolint:errcheck
			conn.Release()
			return
		}

		slog.Warn("LISTEN connection lost", "channel", channel, "error", err)
		// Closed connections are destroyed by the pool on release.
		conn.Conn().Close(context.Background()) //nolint:errcheck
		conn.Release()
		conn = s.relisten(ctx, channel)
	}
}

// relisten retries LISTEN until it succeeds or ctx ends, in which case it
// returns nil.
func (s *subscription) relisten(ctx context.Context, channel string) *pgxpool.Conn {
	wait := reconnectBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		conn, err := s.bus.listen(ctx, channel)
		if err == nil {
			slog.Info("LISTEN restored", "channel", channel)
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("re-establishing LISTEN", "channel", channel, "retry_in", wait, "error", err)
		wait = min(wait*2, maxReconnectBackoff)
	}
}

// receive dispatches notifications until waiting on conn fails.
func receive(ctx context.Context, conn *pgxpool.Conn, channel string, handler porteventbus.Handler) error {
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var e event.Event
		if err := json.Unmarshal([]byte(notification.Payload), &e); err != nil {
			slog.Warn("dropping malformed event payload", "channel", channel, "error", err)
			continue
		}

		handler(ctx, e)
	}
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs[s.channel], s)
	s.bus.mu.Unlock()
	s.stop()
}

func (s *subscription) stop() {
	s.cancel()
	<-s.done
}
