// Package rabbitmq publishes document change events to a RabbitMQ topic
// exchange, msgpack-encoded, routed by collection name.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/alanyang/portfolio-api/internal/domain/event"
	porteventbus "github.com/alanyang/portfolio-api/internal/port/eventbus"
)

var _ porteventbus.EventBus = (*EventBus)(nil)

const (
	contentType  = "application/x-msgpack"
	connAttempts = 5
)

// Dial connects to uri, retrying with a linearly growing backoff.
func Dial(ctx context.Context, uri string) (*amqp091.Connection, error) {
	backoff := time.Second

	for i := 0; i < connAttempts; i++ {
		conn, err := amqp091.Dial(uri)
		if err == nil {
			return conn, nil
		}

		slog.Info("failed to connect to rabbitmq, retrying", "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff += time.Second
	}

	return nil, fmt.Errorf("failed to establish connection to rabbitmq after %d attempts", connAttempts)
}

// EventBus implements port/eventbus.EventBus on a topic exchange. Each
// subscription consumes from its own exclusive, auto-deleted queue.
type EventBus struct {
	conn     *amqp091.Connection
	exchange string

	pubMu sync.Mutex
	pubCh *amqp091.Channel

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// New declares the exchange and opens the publishing channel.
func New(conn *amqp091.Connection, exchange string) (*EventBus, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel - %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s - %w", exchange, err)
	}

	return &EventBus{
		conn:     conn,
		exchange: exchange,
		pubCh:    ch,
		subs:     make(map[*subscription]struct{}),
	}, nil
}

func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}

	eb.pubMu.Lock()
	defer eb.pubMu.Unlock()

	err = eb.pubCh.PublishWithContext(ctx, eb.exchange, string(e.Channel()), false, false, amqp091.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp091.Transient,
		MessageId:    e.ID.String(),
		Type:         string(e.Type),
		Timestamp:    e.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to %s - %w", eb.exchange, err)
	}
	return nil
}

func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	amqpCh, err := eb.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel - %w", err)
	}

	q, err := amqpCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = amqpCh.Close()
		return nil, fmt.Errorf("failed to declare queue - %w", err)
	}
	if err := amqpCh.QueueBind(q.Name, string(ch), eb.exchange, false, nil); err != nil {
		_ = amqpCh.Close()
		return nil, fmt.Errorf("failed to bind queue %s - %w", q.Name, err)
	}

	deliveries, err := amqpCh.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = amqpCh.Close()
		return nil, fmt.Errorf("failed to start consumption - %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{bus: eb, ch: amqpCh, cancel: cancel, done: make(chan struct{})}

	eb.mu.Lock()
	eb.subs[sub] = struct{}{}
	eb.mu.Unlock()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				e, err := decode(d.Body)
				if err != nil {
					slog.Error("failed to decode rabbitmq message", "message_id", d.MessageId, "error", err)
					continue
				}
				handler(subCtx, e)
			}
		}
	}()

	return sub, nil
}

// Close cancels all subscriptions, then closes the publishing channel and
// the connection.
func (eb *EventBus) Close() error {
	eb.mu.Lock()
	subs := make([]*subscription, 0, len(eb.subs))
	for sub := range eb.subs {
		subs = append(subs, sub)
	}
	eb.subs = make(map[*subscription]struct{})
	eb.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	eb.pubMu.Lock()
	defer eb.pubMu.Unlock()
	if err := eb.pubCh.Close(); err != nil {
		slog.Error("failed to close rabbitmq channel gracefully", "error", err)
	}
	return eb.conn.Close()
}

func encode(e event.Event) ([]byte, error) {
	body, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event - %w", err)
	}
	return body, nil
}

func decode(body []byte) (event.Event, error) {
	var e event.Event
	if err := msgpack.Unmarshal(body, &e); err != nil {
		return event.Event{}, fmt.Errorf("failed to decode event - %w", err)
	}
	return e, nil
}

type subscription struct {
	bus    *EventBus
	ch     *amqp091.Channel
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.stop()
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if err := s.ch.Close(); err != nil {
			slog.Error("failed to close consumer channel gracefully", "error", err)
		}
	})
}
