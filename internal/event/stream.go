package event

import (
	"context"
	"fmt"
	"sync"
)

// Publisher is the broker side a Stream writes to.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Stream binds a Counter to the queue it versions. Emit holds a lock across
// version allocation and publish, so envelopes from one process reach the
// queue in version order.
type Stream struct {
	mu      sync.Mutex
	queue   string
	counter *Counter
	pub     Publisher
}

// NewStream creates a stream publishing to queue with a fresh counter.
func NewStream(pub Publisher, queue string) *Stream {
	return &Stream{queue: queue, counter: &Counter{}, pub: pub}
}

// Queue returns the queue name.
func (s *Stream) Queue() string { return s.queue }

// Version returns the last version emitted.
func (s *Stream) Version() uint64 { return s.counter.Current() }

// Builder stamps one envelope with the next version of a counter. The
// catalog constructors fit it once their payload is bound.
type Builder func(c *Counter) (Envelope, error)

// Emit builds an envelope with build and publishes it. A failed publish
// gives the version back so the stream does not open a gap.
func (s *Stream) Emit(ctx context.Context, build Builder) (Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := build(s.counter)
	if err != nil {
		return Envelope{}, err
	}
	body, err := env.Marshal()
	if err != nil {
		s.counter.release(env.Version)
		return Envelope{}, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	if err := s.pub.Publish(ctx, s.queue, body); err != nil {
		s.counter.release(env.Version)
		return Envelope{}, fmt.Errorf("publish %s to %s: %w", env.Type, s.queue, err)
	}
	return env, nil
}
