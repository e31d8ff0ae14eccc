package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// DefaultQueueCapacity bounds each in-memory queue.
const DefaultQueueCapacity = 1024

// Memory is an in-process Broker. Each queue is a bounded channel; several
// subscribers on one queue compete for messages the way AMQP consumers do.
type Memory struct {
	mu       sync.RWMutex
	queues   map[string]chan Delivery
	capacity int
	closed   bool
	done     chan struct{}
	logger   *log.Logger
}

var _ Broker = (*Memory)(nil)

// NewMemory creates an in-memory broker. A capacity <= 0 selects
// DefaultQueueCapacity.
func NewMemory(capacity int, logger *log.Logger) *Memory {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Memory{
		queues:   make(map[string]chan Delivery),
		capacity: capacity,
		done:     make(chan struct{}),
		logger:   logger.WithPrefix("broker"),
	}
}

// AssertQueue declares a queue; declaring an existing queue is a no-op.
func (m *Memory) AssertQueue(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = make(chan Delivery, m.capacity)
		m.logger.Debug("Declared queue", "queue", name)
	}
	return nil
}

// Publish appends body to the queue without blocking.
func (m *Memory) Publish(ctx context.Context, queue string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	q, ok := m.queues[queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoQueue, queue)
	}
	select {
	case q <- Delivery{Queue: queue, Body: append([]byte(nil), body...)}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, queue)
	}
}

// Subscribe attaches a consumer to an asserted queue. Messages published
// before the subscription are delivered first.
func (m *Memory) Subscribe(ctx context.Context, queue string) (Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	q, ok := m.queues[queue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoQueue, queue)
	}

	sub := &memorySubscription{
		out:  make(chan Delivery),
		stop: make(chan struct{}),
	}
	go sub.forward(ctx, q, m.done)
	return sub, nil
}

// Depth reports how many messages wait on a queue.
func (m *Memory) Depth(queue string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues[queue])
}

// Close shuts the broker down; subscriptions drain no further.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

type memorySubscription struct {
	out      chan Delivery
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *memorySubscription) C() <-chan Delivery { return s.out }

func (s *memorySubscription) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// forward moves messages from the queue to the subscriber. A message taken
// off the queue while the subscriber is closing is lost.
func (s *memorySubscription) forward(ctx context.Context, q <-chan Delivery, brokerDone <-chan struct{}) {
	defer close(s.out)
	for {
		select {
		case <-s.stop:
			return
		case <-brokerDone:
			return
		case <-ctx.Done():
			return
		case d := <-q:
			select {
			case s.out <- d:
			case <-s.stop:
				return
			case <-brokerDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
