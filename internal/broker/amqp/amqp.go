// Package amqp adapts a RabbitMQ connection to broker.Broker. Queues go
// through the default exchange, so a queue name doubles as routing key.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lox/heartsrealm/internal/broker"
)

// Broker publishes over one shared channel and opens a channel per
// subscription.
type Broker struct {
	conn   *amqp.Connection
	mu     sync.Mutex
	pub    *amqp.Channel
	logger *log.Logger
}

var _ broker.Broker = (*Broker)(nil)

// Dial connects to url. A failure here is fatal for whoever is starting up.
func Dial(url string, logger *log.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &Broker{conn: conn, pub: ch, logger: logger.WithPrefix("amqp")}, nil
}

// AssertQueue declares a non-durable queue.
func (b *Broker) AssertQueue(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.pub.QueueDeclare(name, false, false, false, false, nil); err != nil {
		return mapErr(fmt.Errorf("declare %s: %w", name, err))
	}
	return nil
}

// Publish sends body to queue through the default exchange.
func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return mapErr(fmt.Errorf("publish %s: %w", queue, err))
	}
	return nil
}

// Subscribe consumes queue with auto-ack on a dedicated channel.
func (b *Broker) Subscribe(ctx context.Context, queue string) (broker.Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, mapErr(fmt.Errorf("open consumer channel: %w", err))
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, mapErr(fmt.Errorf("consume %s: %w", queue, err))
	}

	sub := &subscription{ch: ch, out: make(chan broker.Delivery), done: make(chan struct{})}
	go sub.forward(queue, deliveries)
	b.logger.Debug("Subscribed", "queue", queue)
	return sub, nil
}

// Close tears down the connection and every channel on it.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}

func mapErr(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %v", broker.ErrClosed, err)
	}
	return err
}

type subscription struct {
	ch   *amqp.Channel
	out  chan broker.Delivery
	done chan struct{}
	once sync.Once
}

func (s *subscription) C() <-chan broker.Delivery { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ch.Close()
	})
	return err
}

func (s *subscription) forward(queue string, deliveries <-chan amqp.Delivery) {
	defer close(s.out)
	for d := range deliveries {
		select {
		case s.out <- broker.Delivery{Queue: queue, Body: d.Body}:
		case <-s.done:
			return
		}
	}
}
